package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/miniapp_gateway/db"
	"github.com/Fi44er/miniapp_gateway/internal/instagram"
	"github.com/Fi44er/miniapp_gateway/internal/models"
	"github.com/Fi44er/miniapp_gateway/internal/payload"
	"github.com/Fi44er/miniapp_gateway/internal/repository"
	"github.com/Fi44er/miniapp_gateway/internal/signature"
	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "s3cr3t"
	formType   = "application/x-www-form-urlencoded"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	admins []string
	users  map[int64][]string
}

func (f *fakeNotifier) NotifyAdmins(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins = append(f.admins, text)
}

func (f *fakeNotifier) NotifyUser(chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = map[int64][]string{}
	}
	f.users[chatID] = append(f.users[chatID], text)
}

type fakeInstagram struct {
	calls      []string
	carousels  [][]string
	next       int
	createErr  error
	publishErr error
	refreshErr error
	refreshed  *instagram.RefreshedToken
}

func (f *fakeInstagram) id(kind string) string {
	f.next++
	return fmt.Sprintf("%s-%d", kind, f.next)
}

func (f *fakeInstagram) CreateImageContainer(_ context.Context, _, _, imageURL, _ string) (string, error) {
	f.calls = append(f.calls, "image:"+imageURL)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.id("image"), nil
}

func (f *fakeInstagram) CreateCarouselItem(_ context.Context, _, _, imageURL string) (string, error) {
	f.calls = append(f.calls, "item:"+imageURL)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.id("item"), nil
}

func (f *fakeInstagram) CreateCarouselContainer(_ context.Context, _, _ string, children []string, _ string) (string, error) {
	f.calls = append(f.calls, "carousel")
	f.carousels = append(f.carousels, children)
	return f.id("carousel"), nil
}

func (f *fakeInstagram) Publish(_ context.Context, _, _, creationID string) (string, error) {
	f.calls = append(f.calls, "publish:"+creationID)
	if f.publishErr != nil {
		return "", f.publishErr
	}
	return "1790000000" + creationID, nil
}

func (f *fakeInstagram) RefreshToken(_ context.Context, _ string) (*instagram.RefreshedToken, error) {
	f.calls = append(f.calls, "refresh")
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeInstagram) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeWaiter struct {
	polled  []string
	failFor map[string]error
}

func (f *fakeWaiter) WaitReady(_ context.Context, containerID, _ string) error {
	f.polled = append(f.polled, containerID)
	return f.failFor[containerID]
}

type testEnv struct {
	svc      *Service
	repo     *repository.Repository
	ig       *fakeInstagram
	waiter   *fakeWaiter
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	log := utils.Discard()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	database, err := db.ConnectDb(db.DriverSQLite, fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name), log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database, true, log))
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		repo:     repository.NewRepository(database, log),
		ig:       &fakeInstagram{},
		waiter:   &fakeWaiter{failFor: map[string]error{}},
		notifier: &fakeNotifier{},
	}
	env.svc = NewService(env.repo, env.notifier, env.ig, env.waiter, Options{
		OrderPrefix:         "prodamus",
		WebhookSecret:       secret,
		ReferralPercent:     10,
		TokenRefreshHorizon: 7 * 24 * time.Hour,
	}, log)
	env.svc.SetClock(func() time.Time { return testNow })
	return env
}

func (e *testEnv) createUser(t *testing.T, id int64, referrer *int64) {
	t.Helper()
	require.NoError(t, e.repo.CreateUser(context.Background(), &models.User{TelegramID: id, ReferrerID: referrer}))
}

func (e *testEnv) balance(t *testing.T, id int64) int64 {
	t.Helper()
	user, err := e.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user.Balance
}

func formBody(fields map[string]string) []byte {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return []byte(values.Encode())
}

func sign(t *testing.T, body []byte, contentType, secret string) string {
	t.Helper()
	decoded, err := payload.Decode(body, contentType)
	require.NoError(t, err)
	sig, err := signature.Sign(decoded, secret)
	require.NoError(t, err)
	return sig
}

func signedRequest(t *testing.T, fields map[string]string) WebhookRequest {
	body := formBody(fields)
	return WebhookRequest{
		Body:        body,
		ContentType: formType,
		Signature:   sign(t, body, formType, testSecret),
		RemoteAddr:  "203.0.113.7",
	}
}

func lightOrder(telegramID int64) map[string]string {
	return map[string]string{
		"order_num":         fmt.Sprintf("prodamus_%d_1700000000000_light", telegramID),
		"sum":               "290.00",
		"payment_status":    "success",
		"customer_extra":    "",
		"products[0][name]": "Light",
	}
}

func TestWebhookCreditsPurchase(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, lightOrder(100)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(30), env.balance(t, 100))

	entries, err := env.repo.GetLedgerEntries(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(30), entries[0].Amount)
	assert.Equal(t, models.TransactionPurchase, entries[0].Type)
	assert.Equal(t, int64(30), entries[0].BalanceAfter)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Metadata, &meta))
	assert.Equal(t, "prodamus_100_1700000000000_light", meta["order_id"])
	assert.Equal(t, "290.00", meta["amount_in_currency"])
	assert.Equal(t, "prodamus", meta["source"])

	assert.Len(t, env.notifier.admins, 1)
	assert.Len(t, env.notifier.users[100], 1)
}

func TestWebhookIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)
	req := signedRequest(t, lightOrder(100))

	first, err := env.svc.HandlePaymentWebhook(context.Background(), req)
	require.NoError(t, err)
	second, err := env.svc.HandlePaymentWebhook(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCredited, first)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, int64(30), env.balance(t, 100))

	entries, err := env.repo.GetLedgerEntries(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWebhookInvalidSignatureIsRejected(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	req := signedRequest(t, lightOrder(100))
	req.Signature = strings.Repeat("0", 64)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, int64(0), env.balance(t, 100))
	require.Len(t, env.notifier.admins, 1)
	assert.Contains(t, env.notifier.admins[0], "203.0.113.7")

	// The rejected attempt must not have claimed the order.
	outcome, err = env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, lightOrder(100)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
}

func TestWebhookTamperedBodyIsRejected(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	req := signedRequest(t, lightOrder(100))
	tampered := lightOrder(100)
	tampered["order_num"] = "prodamus_100_1700000000000_pro"
	req.Body = formBody(tampered)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, int64(0), env.balance(t, 100))
}

func TestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	env := newTestEnv(t, "")
	env.createUser(t, 100, nil)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), WebhookRequest{
		Body:        formBody(lightOrder(100)),
		ContentType: formType,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(30), env.balance(t, 100))
}

func TestWebhookJSONBody(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	body := []byte(`{"order_id":"prodamus_100_1700000000000_starter","sum":"790.00","payment_status":"success","products":[{"name":"Starter","price":"790.00","quantity":"1"}]}`)
	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), WebhookRequest{
		Body:        body,
		ContentType: "application/json",
		Signature:   strings.ToUpper(sign(t, body, "application/json", testSecret)),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(100), env.balance(t, 100))
}

func TestWebhookForeignOrderIsNoop(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	fields := lightOrder(100)
	fields["order_num"] = "shop_100_1700000000000_light"

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForeign, outcome)
	assert.Equal(t, int64(0), env.balance(t, 100))
	assert.Empty(t, env.notifier.admins)
}

func TestWebhookNonSuccessStatusIsIgnored(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	fields := lightOrder(100)
	fields["payment_status"] = "order_denied"

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, int64(0), env.balance(t, 100))

	// A later success for the same order still credits.
	outcome, err = env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, lightOrder(100)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
}

func TestWebhookStatusMatchIsExact(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	for _, status := range []string{"SUCCESS", "Success"} {
		fields := lightOrder(100)
		fields["payment_status"] = status

		outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome, status)
	}
	assert.Equal(t, int64(0), env.balance(t, 100))
}

func TestWebhookFallsBackToCustomerExtra(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, map[string]string{
		"order_num":         "prodamus_web_checkout",
		"sum":               "790",
		"payment_status":    "success",
		"customer_extra":    "Имя: Иван\nTelegram ID: 100",
		"products[0][name]": "Starter",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(100), env.balance(t, 100))
}

func TestWebhookMissingIdentityNotifiesAdmins(t *testing.T) {
	env := newTestEnv(t, testSecret)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, map[string]string{
		"order_num":      "prodamus_web_checkout",
		"sum":            "290",
		"payment_status": "success",
		"customer_extra": "no id here",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, outcome)
	require.Len(t, env.notifier.admins, 1)
	assert.Contains(t, env.notifier.admins[0], "prodamus_web_checkout")
}

func TestWebhookUnknownPackageNotifiesAdmins(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	fields := lightOrder(100)
	fields["order_num"] = "prodamus_100_1700000000000_mega"

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownPackage, outcome)
	assert.Equal(t, int64(0), env.balance(t, 100))
	require.Len(t, env.notifier.admins, 1)
	assert.Contains(t, env.notifier.admins[0], "mega")

	outcome, err = env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestWebhookCreditFailureNotifiesAdmins(t *testing.T) {
	env := newTestEnv(t, testSecret)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, lightOrder(404)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreditFailed, outcome)
	require.Len(t, env.notifier.admins, 1)
	assert.Contains(t, env.notifier.admins[0], "prodamus_404_1700000000000_light")
	assert.Empty(t, env.notifier.users[404])
}

func TestWebhookAmountMismatchStillCredits(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	fields := lightOrder(100)
	fields["sum"] = "1.00"

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(30), env.balance(t, 100))
	require.Len(t, env.notifier.admins, 2)
	assert.Contains(t, env.notifier.admins[0], "1.00")
}

func TestWebhookPaysReferralBonus(t *testing.T) {
	env := newTestEnv(t, testSecret)
	referrer := int64(200)
	env.createUser(t, referrer, nil)
	env.createUser(t, 100, &referrer)

	fields := lightOrder(100)
	fields["order_num"] = "prodamus_100_1700000000000_starter"
	fields["sum"] = "790"

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, fields))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(100), env.balance(t, 100))
	assert.Equal(t, int64(10), env.balance(t, referrer))

	entries, err := env.repo.GetLedgerEntries(context.Background(), referrer)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionReferral, entries[0].Type)
	assert.Len(t, env.notifier.users[referrer], 1)
}

func TestReferralBonusFloorsToZero(t *testing.T) {
	env := newTestEnv(t, testSecret)
	referrer := int64(200)
	env.createUser(t, referrer, nil)
	env.createUser(t, 100, &referrer)

	bonus, err := env.svc.PayReferralBonus(context.Background(), 100, 9, "o")
	require.NoError(t, err)
	assert.Zero(t, bonus)
	assert.Equal(t, int64(0), env.balance(t, referrer))
}

func TestReferralFailureKeepsPrimaryCredit(t *testing.T) {
	env := newTestEnv(t, testSecret)
	ghost := int64(999)
	env.createUser(t, 100, &ghost)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), signedRequest(t, lightOrder(100)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)
	assert.Equal(t, int64(30), env.balance(t, 100))
}

func TestWebhookMalformedBodyReturnsError(t *testing.T) {
	env := newTestEnv(t, testSecret)

	outcome, err := env.svc.HandlePaymentWebhook(context.Background(), WebhookRequest{
		Body:        []byte(`{"order_id":`),
		ContentType: "application/json",
	})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestApplyCreditUnknownUserWritesNothing(t *testing.T) {
	env := newTestEnv(t, testSecret)

	_, err := env.svc.ApplyCredit(context.Background(), 1, 10, models.TransactionManual, "manual", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))

	entries, err := env.repo.GetLedgerEntries(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentDuplicateWebhooksCreditOnce(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)
	req := signedRequest(t, lightOrder(100))

	const deliveries = 8
	outcomes := make([]WebhookOutcome, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = env.svc.HandlePaymentWebhook(context.Background(), req)
		}(i)
	}
	wg.Wait()

	credited := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeCredited:
			credited++
		case OutcomeDuplicate:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, int64(30), env.balance(t, 100))

	entries, err := env.repo.GetLedgerEntries(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentCreditsAreNotLost(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.createUser(t, 100, nil)

	const credits = 10
	var wg sync.WaitGroup
	errs := make([]error, credits)
	for i := 0; i < credits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.ApplyCredit(context.Background(), 100, int64(i+1), models.TransactionManual, "manual", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(credits*(credits+1)/2), env.balance(t, 100))

	entries, err := env.repo.GetLedgerEntries(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, credits)

	var sum int64
	afters := map[int64]bool{}
	for _, e := range entries {
		sum += e.Amount
		afters[e.BalanceAfter] = true
	}
	assert.Equal(t, int64(credits*(credits+1)/2), sum)
	assert.Len(t, afters, credits, "every credit sees a distinct running balance")
}
