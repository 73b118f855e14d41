package services_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/i18n"
	"promo-kiosk-backend/internal/logging"
	"promo-kiosk-backend/internal/models"
	"promo-kiosk-backend/internal/services"
)

type harness struct {
	cfg     *config.Config
	backend *fakeBackend
	bridge  *fakeBridge
	mr      *miniredis.Miniredis
	session *services.SessionStore
	errs    *services.ErrorNormalizer
	orch    *services.Orchestrator
	ctrl    *services.Controller
}

func newHarness(t *testing.T, cfg *config.Config, owner string) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tr, err := i18n.NewTranslator(cfg.Localization)
	require.NoError(t, err)

	h := &harness{
		cfg: cfg,
		backend: &fakeBackend{
			status: models.PlayerStatus{IsCustomer: true},
			promos: []models.Promotion{
				{ID: 7, Code: "7", Title: "Welcome", RewardType: models.RewardPoints, RewardValue: 150},
				{ID: 8, Code: "8", Title: "Cash", RewardType: models.RewardAmount, RewardValue: 20},
			},
		},
		bridge:  &fakeBridge{},
		mr:      mr,
		session: services.NewSessionStore(models.MboxData{OwnerID: owner, EgmCode: "EGM-1", CasinoCurrencySymbol: "€"}),
		errs:    services.NewErrorNormalizer(cfg, tr, logging.Discard()),
	}

	h.orch = services.NewOrchestrator(cfg, h.backend, h.bridge, h.errs,
		services.NewRedisServiceWithClient(client), services.NewJWTService(cfg), h.session, logging.Discard())

	h.ctrl, err = services.NewController(cfg, h.orch, h.backend,
		services.NewCascadeAnimator(cfg.Animations), h.errs, h.session, i18n.NewFormatter(tr, cfg), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(h.ctrl.Close)
	return h
}

func redirectQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestRedirectBase(t *testing.T) {
	assert.Equal(t, "http://kiosk.local/kiosk/", services.RedirectBase("http://kiosk.local/kiosk?status=success&code=x"))
	assert.Equal(t, "http://kiosk.local/kiosk/", services.RedirectBase("http://kiosk.local/kiosk/"))
}

func TestRequestAuthenticationBuildsRedirects(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")

	flowID, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{
		PromoID: 7, RewardType: models.RewardPoints, RewardValue: 150,
	})
	require.NoError(t, err)
	require.NotEmpty(t, flowID)

	cmd := h.bridge.Last()
	assert.Equal(t, models.MessageTypeRequestPlayerPin, cmd.MessageType)
	assert.Equal(t, "JOA MyPromo", cmd.AppName)
	assert.Equal(t, flowID, cmd.CustomPayload["flow"])
	assert.Equal(t, "7", cmd.CustomPayload["promoId"])

	for status, raw := range map[string]string{"success": cmd.URLOnSuccess, "failure": cmd.URLOnFailure, "error": cmd.URLOnError} {
		assert.True(t, strings.HasPrefix(raw, "http://kiosk.local/kiosk/?"), raw)
		q := redirectQuery(t, raw)
		assert.Equal(t, status, q.Get("status"))
		assert.Equal(t, flowID, q.Get("flow"))
		assert.Equal(t, "7", q.Get("promoId"))
		assert.Equal(t, "points", q.Get("rewardType"))
		assert.Equal(t, "150", q.Get("rewardValue"))
		assert.Empty(t, q.Get("sig"))
	}
	assert.True(t, h.orch.HasPending())
}

func TestRequestAuthenticationBridgeFailure(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")
	h.bridge.err = errBridgeDown

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7})
	var std *models.StandardError
	require.True(t, errors.As(err, &std))
	assert.Equal(t, models.CodeMboxAuthError, std.Code)
	assert.True(t, std.RequirePinClear)
	assert.False(t, h.orch.HasPending(), "timeout is defused")

	_, err = h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7})
	assert.False(t, errors.Is(err, services.ErrSubmitInProgress), "lock released after failure")
}

func TestRequestAuthenticationSingleFlight(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7})
	require.NoError(t, err)
	_, err = h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 8})
	assert.ErrorIs(t, err, services.ErrSubmitInProgress)
}

func TestResumeFailureAndErrorSkipBackend(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")
	params := services.ResumeParamsFrom(h.cfg.Mbox)

	for status, want := range map[string]string{
		"failure": models.CodePinInvalid,
		"error":   models.CodeMboxAuthError,
		"bogus":   models.CodeMboxAuthError,
	} {
		intent := models.ParseResumeIntent(url.Values{"status": {status}, "promoId": {"7"}}, params)
		r := h.orch.Resume(context.Background(), intent)
		assert.False(t, r.IsSuccess, status)
		assert.Equal(t, want, r.ErrorCode, status)
		assert.True(t, r.IsMember)
	}
	assert.Empty(t, h.backend.Calls())
}

func TestResumeSelectionRedeemsDirectly(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")

	flowID, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{
		PromoID: 7, RewardType: models.RewardPoints, RewardValue: 150,
	})
	require.NoError(t, err)

	q := redirectQuery(t, h.bridge.Last().URLOnSuccess)
	r := h.orch.Resume(context.Background(), models.ParseResumeIntent(q, services.ResumeParamsFrom(h.cfg.Mbox)))

	assert.True(t, r.IsSuccess)
	assert.Equal(t, int64(7), r.PromoID)
	assert.Equal(t, models.RewardPoints, r.RewardType)
	assert.Equal(t, 150.0, r.RewardValue)
	assert.Equal(t, 1150.0, r.NewBalance)
	assert.Equal(t, []string{"use"}, h.backend.Calls(), "no validation on the selection path")
	assert.False(t, h.orch.HasPending(), "flow %s timeout defused", flowID)
}

func TestResumeReplaysOnRefresh(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7, RewardValue: 150})
	require.NoError(t, err)
	intent := models.ParseResumeIntent(redirectQuery(t, h.bridge.Last().URLOnSuccess), services.ResumeParamsFrom(h.cfg.Mbox))

	first := h.orch.Resume(context.Background(), intent)
	second := h.orch.Resume(context.Background(), intent)

	assert.True(t, first.IsSuccess)
	assert.Equal(t, first, second)
	assert.Equal(t, []int64{7}, h.backend.Used())
}

func TestResumeConcurrentRedirectsRedeemOnce(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7, RewardValue: 150})
	require.NoError(t, err)
	intent := models.ParseResumeIntent(redirectQuery(t, h.bridge.Last().URLOnSuccess), services.ResumeParamsFrom(h.cfg.Mbox))

	var wg sync.WaitGroup
	results := make([]models.ValidationResult, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.orch.Resume(context.Background(), intent)
		}()
	}
	wg.Wait()

	assert.Len(t, h.backend.Used(), 1)
	for _, r := range results {
		assert.True(t, r.IsSuccess)
	}
}

func TestTimeoutFiresOnceWithoutRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.PinAuthentication = 20 * time.Millisecond
	h := newHarness(t, cfg, "1234")

	var fired atomic.Int32
	var got atomic.Value
	h.orch.OnTimeout(func(flowID string, r models.ValidationResult) {
		fired.Add(1)
		got.Store(r)
	})

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.CodeMboxTimeout, got.Load().(models.ValidationResult).ErrorCode)

	// a late redirect replays the timeout instead of redeeming
	intent := models.ParseResumeIntent(redirectQuery(t, h.bridge.Last().URLOnSuccess), services.ResumeParamsFrom(h.cfg.Mbox))
	late := h.orch.Resume(context.Background(), intent)
	assert.Equal(t, models.CodeMboxTimeout, late.ErrorCode)
	assert.Empty(t, h.backend.Used())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestRedirectDefusesTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.PinAuthentication = 30 * time.Millisecond
	h := newHarness(t, cfg, "1234")

	var fired atomic.Int32
	h.orch.OnTimeout(func(string, models.ValidationResult) { fired.Add(1) })

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7})
	require.NoError(t, err)
	intent := models.ParseResumeIntent(redirectQuery(t, h.bridge.Last().URLOnSuccess), services.ResumeParamsFrom(h.cfg.Mbox))
	r := h.orch.Resume(context.Background(), intent)
	require.True(t, r.IsSuccess)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSignedRedirects(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ResumeSigningSecret = "resume-secret"
	h := newHarness(t, cfg, "1234")
	params := services.ResumeParamsFrom(cfg.Mbox)

	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{PromoID: 7, RewardValue: 150})
	require.NoError(t, err)

	q := redirectQuery(t, h.bridge.Last().URLOnSuccess)
	require.NotEmpty(t, q.Get("sig"))

	forged := url.Values{}
	for k, v := range q {
		forged[k] = v
	}
	forged.Set("rewardValue", "150000")
	r := h.orch.Resume(context.Background(), models.ParseResumeIntent(forged, params))
	assert.Equal(t, models.CodeMboxAuthError, r.ErrorCode)
	assert.Empty(t, h.backend.Calls())

	unsigned := url.Values{"status": {"success"}, "promoId": {"7"}}
	r = h.orch.Resume(context.Background(), models.ParseResumeIntent(unsigned, params))
	assert.Equal(t, models.CodeMboxAuthError, r.ErrorCode)

	r = h.orch.Resume(context.Background(), models.ParseResumeIntent(q, params))
	assert.True(t, r.IsSuccess)
}

func TestSignedVoucherRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ResumeSigningSecret = "resume-secret"
	h := newHarness(t, cfg, "1234")
	h.backend.validate = models.CodeValidation{Valid: true, Promo: &models.Promotion{ID: 12, RewardType: models.RewardPoints, RewardValue: 50}}

	// leading digits must not leak into what gets signed
	code := "12-3456-7890-1234-5678"
	_, err := h.orch.RequestAuthentication(context.Background(), services.AuthTarget{Code: code})
	require.NoError(t, err)

	q := redirectQuery(t, h.bridge.Last().URLOnSuccess)
	require.NotEmpty(t, q.Get("sig"))
	assert.Empty(t, q.Get("promoId"))

	r := h.orch.Resume(context.Background(), models.ParseResumeIntent(q, services.ResumeParamsFrom(cfg.Mbox)))
	assert.True(t, r.IsSuccess, "error code %q", r.ErrorCode)
	assert.Equal(t, int64(12), r.PromoID)
	assert.Equal(t, []string{"validate:" + code, "use"}, h.backend.Calls())
}

func TestResumeReleasesLockTakenAtRequest(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")
	ctx := context.Background()

	_, err := h.orch.RequestAuthentication(ctx, services.AuthTarget{PromoID: 7})
	require.NoError(t, err)
	q := redirectQuery(t, h.bridge.Last().URLOnSuccess)

	moved := h.session.Snapshot()
	moved.EgmCode = "EGM-2"
	h.session.Set(moved)

	r := h.orch.Resume(ctx, models.ParseResumeIntent(q, services.ResumeParamsFrom(h.cfg.Mbox)))
	require.True(t, r.IsSuccess)

	back := h.session.Snapshot()
	back.EgmCode = "EGM-1"
	h.session.Set(back)

	_, err = h.orch.RequestAuthentication(ctx, services.AuthTarget{PromoID: 8})
	assert.NoError(t, err, "EGM-1 lock is released")
}

func TestValidateCodeOutcomes(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")
	ctx := context.Background()

	h.backend.validate = models.CodeValidation{Valid: true, Promo: &models.Promotion{ID: 42, RewardType: models.RewardAmount, RewardValue: 20}}
	ok := h.orch.ValidateCode(ctx, "AB-1234-5678-9012-3456")
	assert.True(t, ok.IsSuccess)
	assert.Equal(t, int64(42), ok.PromoID)
	assert.Equal(t, 1020.0, ok.NewBalance)

	h.backend.validate = models.CodeValidation{Valid: false, Message: "rejected: JOAPI_STIM_0005"}
	assert.Equal(t, models.CodeClosed, h.orch.ValidateCode(ctx, "AB-1234-5678-9012-3456").ErrorCode)

	h.backend.validate = models.CodeValidation{Valid: false, Message: "nope"}
	assert.Equal(t, models.CodeValidationError, h.orch.ValidateCode(ctx, "AB-1234-5678-9012-3456").ErrorCode)
}

func TestApplyValidatedPromo(t *testing.T) {
	h := newHarness(t, testConfig(), "1234")
	ctx := context.Background()

	_, err := h.orch.ApplyValidatedPromo(ctx, 0)
	var std *models.StandardError
	require.True(t, errors.As(err, &std))
	assert.Equal(t, models.CodeStimNotFound, std.Code)
	assert.Empty(t, h.backend.Calls(), "no backend call without a promo id")

	h.backend.useErr = &models.HTTPError{Status: 409, Body: []byte(`{"error":{"code":"JOAPI_STIM_0006"}}`)}
	r, err := h.orch.ApplyValidatedPromo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.CodeUsageExceeded, r.ErrorCode)

	h.backend.useErr = &models.HTTPError{Status: 500}
	r, err = h.orch.ApplyValidatedPromo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.CodeApplicationError, r.ErrorCode)

	h.backend.useErr = &models.HTTPError{Status: 0}
	r, err = h.orch.ApplyValidatedPromo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.CodeAPICommunication, r.ErrorCode)
}
