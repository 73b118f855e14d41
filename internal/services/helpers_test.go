package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/i18n"
	"promo-kiosk-backend/internal/logging"
	"promo-kiosk-backend/internal/models"
	"promo-kiosk-backend/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{
		KioskPageURL: "http://kiosk.local/kiosk?lang=fr",
		Animations: config.AnimationConfig{
			ItemDelay:       5 * time.Millisecond,
			ReturnItemDelay: 2 * time.Millisecond,
			FinalDelay:      8 * time.Millisecond,
			ViewTransition:  5 * time.Millisecond,
			MaxCascadeItems: 5,
			ClickFeedback:   20 * time.Millisecond,
		},
		Localization: config.LocalizationConfig{
			SupportedLanguages:    []string{"fr", "en"},
			DefaultLanguage:       "en",
			DefaultCurrencySymbol: "€",
		},
		Validation: config.ValidationConfig{CodePattern: `^\w{2}-\w{4}-\w{4}-\w{4}-\w{4}$`},
		Timeouts:   config.TimeoutConfig{PinAuthentication: time.Second},
		Promo:      config.PromoConfig{HideUsageIfMaxOne: true, SimulatedBalance: 1000},
		Player:     config.PlayerConfig{AnonymousIDs: []string{"", "0"}},
		Mbox: config.MboxConfig{
			AppName:          "JOA MyPromo",
			StatusParam:      "status",
			PromoIDParam:     "promoId",
			CodeParam:        "code",
			RewardTypeParam:  "rewardType",
			RewardValueParam: "rewardValue",
			FlowParam:        "flow",
			SignatureParam:   "sig",
			SuccessValue:     "success",
			FailureValue:     "failure",
			ErrorValue:       "error",
		},
		Errors:   config.ErrorConfig{HTTPStatusCodes: map[int]string{0: models.CodeAPICommunication}},
		Features: config.FeatureConfig{ManualCodeInput: true, ShowUtilisationInfo: true},
		Security: config.SecurityConfig{ResumeTokenTTL: time.Minute, PinAttemptsPerMinute: 5},
	}
}

func newNormalizer(t *testing.T, cfg *config.Config) *services.ErrorNormalizer {
	t.Helper()
	tr, err := i18n.NewTranslator(cfg.Localization)
	require.NoError(t, err)
	return services.NewErrorNormalizer(cfg, tr, logging.Discard())
}

// fakeBackend records calls and answers with canned responses.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	status   models.PlayerStatus
	promos   []models.Promotion
	validate models.CodeValidation
	useErr   error
	used     []int64
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Used() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.used...)
}

func (f *fakeBackend) CheckPlayerStatus(ctx context.Context, playerID string) (models.PlayerStatus, error) {
	f.record("status")
	return f.status, nil
}

func (f *fakeBackend) GetPlayerPromos(ctx context.Context, playerID string) ([]models.Promotion, error) {
	f.record("promos")
	return f.promos, nil
}

func (f *fakeBackend) ValidateCode(ctx context.Context, code, playerID string) (models.CodeValidation, error) {
	f.record("validate:" + code)
	return f.validate, nil
}

func (f *fakeBackend) UsePromo(ctx context.Context, promoID int64) (models.UseResponse, error) {
	f.record("use")
	if f.useErr != nil {
		return models.UseResponse{}, f.useErr
	}
	f.mu.Lock()
	f.used = append(f.used, promoID)
	f.mu.Unlock()
	return models.UseResponse{Message: "applied"}, nil
}

// fakeBridge captures PIN commands instead of talking to a host.
type fakeBridge struct {
	mu   sync.Mutex
	cmds []models.PlayerPinCommand
	err  error
}

func (b *fakeBridge) RequestPlayerPin(ctx context.Context, cmd models.PlayerPinCommand) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	b.cmds = append(b.cmds, cmd)
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) Last() models.PlayerPinCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cmds) == 0 {
		return models.PlayerPinCommand{}
	}
	return b.cmds[len(b.cmds)-1]
}

var errBridgeDown = errors.New("host channel not connected")
