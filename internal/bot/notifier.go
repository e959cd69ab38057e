package bot

import (
	"github.com/Fi44er/miniapp_gateway/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers best-effort status messages. Every send is independent:
// a failed delivery is logged and never reported to the caller.
type Notifier struct {
	api      Sender
	adminIDs []int64
	logger   *utils.Logger
}

// NewNotifier accepts a nil api, in which case messages are only logged.
func NewNotifier(api Sender, adminIDs []int64, logger *utils.Logger) *Notifier {
	return &Notifier{
		api:      api,
		adminIDs: adminIDs,
		logger:   logger,
	}
}

func (n *Notifier) NotifyAdmins(text string) {
	if len(n.adminIDs) == 0 {
		n.logger.Warnf("NOTIFY: no admin chats configured, dropping message: %s", utils.Truncate(text, 200))
		return
	}
	for _, id := range n.adminIDs {
		n.sendMessage(id, text)
	}
}

func (n *Notifier) NotifyUser(chatID int64, text string) {
	n.sendMessage(chatID, text)
}

func (n *Notifier) sendMessage(chatID int64, text string) {
	if n.api == nil {
		n.logger.Infof("NOTIFY (disabled) to %d: %s", chatID, utils.Truncate(text, 200))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorf("Panic while sending message to %d: %v", chatID, r)
		}
	}()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Errorf("Failed to send message to %d: %v", chatID, err)
	}
}
