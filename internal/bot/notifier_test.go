package bot

import (
	"errors"
	"strings"
	"testing"

	"github.com/Fi44er/miniapp_gateway/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	failFor map[int64]bool
	panicOn map[int64]bool
	sent    []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.panicOn[msg.ChatID] {
		panic("boom")
	}
	if f.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func TestNotifyAdminsContinuesAfterFailure(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]bool{1: true}, panicOn: map[int64]bool{2: true}}
	n := NewNotifier(sender, []int64{1, 2, 3}, utils.Discard())

	n.NotifyAdmins("hello")

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, int64(3), sender.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, sender.sent[0].ParseMode)
}

func TestNotifyUser(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, nil, utils.Discard())

	n.NotifyUser(42, PaymentCreditedUser(30, 130))

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "<b>30</b>")
}

func TestNotifierWithoutSenderOnlyLogs(t *testing.T) {
	n := NewNotifier(nil, []int64{1}, utils.Discard())
	assert.NotPanics(t, func() {
		n.NotifyAdmins("x")
		n.NotifyUser(1, "y")
	})
}

func TestMessagesEscapeDynamicContent(t *testing.T) {
	text := CreditFailedAdmin("prodamus_1_2_<b>", 1, "light", 30, errors.New("pq: <broken> & failed"))
	assert.Contains(t, text, "prodamus_1_2_&lt;b&gt;")
	assert.Contains(t, text, "&lt;broken&gt; &amp; failed")
	assert.False(t, strings.Contains(text, "<broken>"))

	assert.Contains(t, UnknownPackageAdmin("o", 1, "mega", "100"), "вручную")
}
