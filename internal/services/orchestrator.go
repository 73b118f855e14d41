package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/metrics"
	"promo-kiosk-backend/internal/models"
)

var ErrSubmitInProgress = errors.New("an authentication is already in progress")

var messageCodePattern = regexp.MustCompile(`JOAPI_STIM_\d+`)

// AuthTarget is what a PIN authentication is requested for: a list
// selection (PromoID) or a typed voucher (Code).
type AuthTarget struct {
	PromoID     int64
	Code        string
	RewardType  models.RewardType
	RewardValue float64
}

// Orchestrator runs the promotion validation flow. A flow starts with
// RequestAuthentication and ends in Resume when the host redirect lands, or
// in the local timeout. Exactly one of the two produces the terminal result.
type Orchestrator struct {
	backend PromoBackend
	bridge  PlayerAuthBridge
	errs    *ErrorNormalizer
	store   FlowStore
	signer  *JWTService
	session *SessionStore
	logger  *slog.Logger

	mbox         config.MboxConfig
	authTimeout  time.Duration
	simulated    float64
	anonymousIDs []string
	baseURL      string

	mu        sync.Mutex
	pending   map[string]context.CancelFunc
	onTimeout func(flowID string, result models.ValidationResult)
}

func NewOrchestrator(
	cfg *config.Config,
	backend PromoBackend,
	bridge PlayerAuthBridge,
	errs *ErrorNormalizer,
	store FlowStore,
	signer *JWTService,
	session *SessionStore,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		backend:      backend,
		bridge:       bridge,
		errs:         errs,
		store:        store,
		signer:       signer,
		session:      session,
		logger:       logger,
		mbox:         cfg.Mbox,
		authTimeout:  cfg.Timeouts.PinAuthentication,
		simulated:    cfg.Promo.SimulatedBalance,
		anonymousIDs: cfg.Player.AnonymousIDs,
		baseURL:      RedirectBase(cfg.KioskPageURL),
		pending:      make(map[string]context.CancelFunc),
	}
}

// RedirectBase strips the query from the page URL and ensures a trailing
// slash.
func RedirectBase(pageURL string) string {
	base, _, _ := strings.Cut(pageURL, "?")
	base, _, _ = strings.Cut(base, "#")
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// OnTimeout registers the receiver of results produced by the local
// authentication timeout.
func (o *Orchestrator) OnTimeout(fn func(flowID string, result models.ValidationResult)) {
	o.mu.Lock()
	o.onTimeout = fn
	o.mu.Unlock()
}

// IsMember reports whether the current session belongs to a known player.
func (o *Orchestrator) IsMember() bool {
	return !slices.Contains(o.anonymousIDs, o.session.Snapshot().OwnerID)
}

// RequestAuthentication asks the host for the player PIN and arms the local
// timeout. It returns the flow id. A returned *models.StandardError means the
// request could not even be handed to the host; ErrSubmitInProgress means
// another flow is still pending.
func (o *Orchestrator) RequestAuthentication(ctx context.Context, target AuthTarget) (string, error) {
	session := o.session.Snapshot()
	owner := lockOwner(session)

	acquired, err := o.store.AcquireSubmitLock(ctx, owner)
	if err != nil {
		return "", o.errs.NormalizeApplicationError(err, ContextMboxAuth)
	}
	if !acquired {
		return "", ErrSubmitInProgress
	}

	now := time.Now()
	flow := &models.PendingFlow{
		ID:          uuid.NewString(),
		PromoID:     target.PromoID,
		Code:        target.Code,
		RewardType:  target.RewardType,
		RewardValue: target.RewardValue,
		PlayerID:    session.OwnerID,
		LockOwner:   owner,
		CreatedAt:   now,
		ExpiresAt:   now.Add(o.authTimeout),
	}
	if flow.Code != "" {
		flow.PromoID = models.PromoIDFromCode(flow.Code)
	}

	if err := o.store.SaveFlow(ctx, flow, TTLFlow); err != nil {
		o.releaseLock(owner)
		return "", o.errs.NormalizeApplicationError(err, ContextMboxAuth)
	}

	cmd, err := o.pinCommand(flow)
	if err != nil {
		o.releaseLock(owner)
		return "", o.errs.NormalizeApplicationError(err, ContextMboxAuth)
	}

	o.armTimeout(flow.ID, owner)

	o.logger.Info("requesting player authentication",
		"flow", flow.ID,
		"promo_id", flow.PromoID,
		"code", flow.Code,
	)

	if err := o.bridge.RequestPlayerPin(ctx, cmd); err != nil {
		o.CancelPending(flow.ID)
		metrics.AuthRequests.WithLabelValues(metrics.OutcomeError).Inc()

		std := o.errs.NormalizeMboxError(err, ContextMboxAuth)
		o.finish(context.WithoutCancel(ctx), flow.ID, owner, func() models.ValidationResult {
			return o.errs.ToValidationResult(std, o.IsMember())
		})
		return "", std
	}

	metrics.AuthRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return flow.ID, nil
}

func (o *Orchestrator) pinCommand(flow *models.PendingFlow) (models.PlayerPinCommand, error) {
	urls := make(map[string]string, 3)
	for _, status := range []string{o.mbox.SuccessValue, o.mbox.FailureValue, o.mbox.ErrorValue} {
		u, err := o.redirectURL(flow, status)
		if err != nil {
			return models.PlayerPinCommand{}, err
		}
		urls[status] = u
	}

	payload := map[string]string{o.mbox.FlowParam: flow.ID}
	if flow.Code != "" {
		payload[o.mbox.CodeParam] = flow.Code
	} else {
		payload[o.mbox.PromoIDParam] = strconv.FormatInt(flow.PromoID, 10)
	}

	return models.PlayerPinCommand{
		MessageType:   models.MessageTypeRequestPlayerPin,
		AppName:       o.mbox.AppName,
		URLOnSuccess:  urls[o.mbox.SuccessValue],
		URLOnFailure:  urls[o.mbox.FailureValue],
		URLOnError:    urls[o.mbox.ErrorValue],
		CustomPayload: payload,
	}, nil
}

// redirectURL encodes everything the flow needs to resume after the host
// navigates back to the page.
func (o *Orchestrator) redirectURL(flow *models.PendingFlow, status string) (string, error) {
	q := url.Values{}
	q.Set(o.mbox.StatusParam, status)
	q.Set(o.mbox.FlowParam, flow.ID)
	if flow.Code != "" {
		q.Set(o.mbox.CodeParam, flow.Code)
	} else {
		q.Set(o.mbox.PromoIDParam, strconv.FormatInt(flow.PromoID, 10))
		if flow.RewardType != "" {
			q.Set(o.mbox.RewardTypeParam, string(flow.RewardType))
		}
		q.Set(o.mbox.RewardValueParam, strconv.FormatFloat(flow.RewardValue, 'f', -1, 64))
	}

	if o.signer != nil && o.signer.ResumeSigningEnabled() {
		sig, err := o.signer.SignResume(flow, status)
		if err != nil {
			return "", fmt.Errorf("sign redirect: %w", err)
		}
		q.Set(o.mbox.SignatureParam, sig)
	}
	return o.baseURL + "?" + q.Encode(), nil
}

func (o *Orchestrator) armTimeout(flowID, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.authTimeout)

	o.mu.Lock()
	o.pending[flowID] = cancel
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		o.mu.Lock()
		delete(o.pending, flowID)
		notify := o.onTimeout
		o.mu.Unlock()

		claimCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		result, won := o.finish(claimCtx, flowID, owner, func() models.ValidationResult {
			o.logger.Warn("player authentication timed out", "flow", flowID)
			return o.HandleMboxAuthError(models.CodeMboxTimeout)
		})
		if won && notify != nil {
			notify(flowID, result)
		}
	}()
}

// CancelPending defuses the timeout of flowID.
func (o *Orchestrator) CancelPending(flowID string) bool {
	o.mu.Lock()
	cancel, ok := o.pending[flowID]
	delete(o.pending, flowID)
	o.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// HasPending reports whether an authentication is awaiting its redirect.
func (o *Orchestrator) HasPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending) > 0
}

// Close cancels every pending timeout.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	pending := o.pending
	o.pending = make(map[string]context.CancelFunc)
	o.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
}

// Resume continues a flow from its redirect parameters. It never fails:
// every path ends in a ValidationResult.
func (o *Orchestrator) Resume(ctx context.Context, intent models.ResumeIntent) models.ValidationResult {
	if intent.Kind == models.ResumeNone {
		return o.errs.ToValidationResult(o.errs.NormalizeApplicationError(models.CodeUnknownError, ContextMboxAuth), o.IsMember())
	}

	if o.signer != nil {
		if err := o.signer.VerifyResume(intent); err != nil {
			o.logger.Warn("rejected redirect", "flow", intent.FlowID, "status", intent.Status, "error", err)
			return o.HandleMboxAuthError(models.CodeMboxAuthError)
		}
	}

	owner := lockOwner(o.session.Snapshot())

	if intent.FlowID != "" {
		o.CancelPending(intent.FlowID)

		claimed, err := o.store.ClaimTerminal(ctx, intent.FlowID)
		if err != nil {
			return o.errs.ToValidationResult(o.errs.NormalizeApplicationError(err, ContextMboxAuth), o.IsMember())
		}
		if !claimed {
			metrics.FlowDuplicates.Inc()
			return o.replay(ctx, intent.FlowID)
		}
		// the session may have moved to another EGM since the request
		if flow, err := o.store.GetFlow(ctx, intent.FlowID); err == nil && flow.LockOwner != "" {
			owner = flow.LockOwner
		}
	}

	result := o.dispatch(ctx, intent)
	if intent.FlowID != "" {
		o.saveResult(ctx, intent.FlowID, result)
	}
	o.releaseLock(owner)
	recordResult(result)
	return result
}

func (o *Orchestrator) dispatch(ctx context.Context, intent models.ResumeIntent) models.ValidationResult {
	switch intent.Kind {
	case models.ResumeAuthSuccess:
		if intent.IsManualCode() {
			return o.resumeManualCode(ctx, intent.Code)
		}
		return o.resumeSelection(ctx, intent)
	case models.ResumeAuthFailure:
		return o.HandleMboxAuthError(models.CodePinInvalid)
	default:
		return o.HandleMboxAuthError(models.CodeMboxAuthError)
	}
}

// resumeManualCode validates the voucher, then redeems the promotion it
// resolves to. Validation alone never redeems.
func (o *Orchestrator) resumeManualCode(ctx context.Context, code string) models.ValidationResult {
	validated := o.ValidateCode(ctx, code)
	if !validated.IsSuccess {
		return validated
	}

	applied, err := o.ApplyValidatedPromo(ctx, validated.PromoID)
	if err != nil {
		return o.errs.ToValidationResult(asStandardError(err), o.IsMember())
	}
	if !applied.IsSuccess {
		return applied
	}

	final := validated
	final.Message = applied.Message
	return final
}

func (o *Orchestrator) resumeSelection(ctx context.Context, intent models.ResumeIntent) models.ValidationResult {
	applied, err := o.ApplyValidatedPromo(ctx, intent.PromoID)
	if err != nil {
		return o.errs.ToValidationResult(asStandardError(err), o.IsMember())
	}
	if !applied.IsSuccess {
		return applied
	}

	final := applied
	final.RewardType = intent.RewardType
	final.RewardValue = intent.RewardValue
	final.NewBalance = o.newBalance(intent.RewardValue)
	return final
}

// ValidateCode asks the backend whether a voucher is usable.
func (o *Orchestrator) ValidateCode(ctx context.Context, code string) models.ValidationResult {
	isMember := o.IsMember()

	resp, err := o.backend.ValidateCode(ctx, code, o.session.Snapshot().OwnerID)
	if err != nil {
		return o.errs.ToValidationResult(o.errs.NormalizeHTTPError(err, ContextPromoValidation), isMember)
	}

	if resp.Valid && resp.Promo != nil {
		return models.ValidationResult{
			IsSuccess:   true,
			IsMember:    isMember,
			RewardValue: resp.Promo.RewardValue,
			RewardType:  resp.Promo.RewardType,
			NewBalance:  o.newBalance(resp.Promo.RewardValue),
			PromoID:     resp.Promo.ID,
		}
	}

	code = messageCodePattern.FindString(resp.Message)
	if code == "" {
		code = models.CodeValidationError
	}
	return o.errs.ToValidationResult(o.errs.NormalizeApplicationError(code, ContextPromoValidation), isMember)
}

// ApplyValidatedPromo redeems promoID. A missing promo id is returned as an
// error; backend failures come back as a failed result.
func (o *Orchestrator) ApplyValidatedPromo(ctx context.Context, promoID int64) (models.ValidationResult, error) {
	if promoID <= 0 {
		return models.ValidationResult{}, o.errs.NormalizeApplicationError(models.CodeStimNotFound, ContextPromoValidation)
	}

	isMember := o.IsMember()
	resp, err := o.backend.UsePromo(ctx, promoID)
	if err != nil {
		std := o.errs.NormalizeHTTPError(err, ContextPromoApply)
		if std.Code == models.CodeUnknownError {
			std = o.errs.NormalizeApplicationError(models.CodeApplicationError, ContextPromoApply)
		}
		return o.errs.ToValidationResult(std, isMember), nil
	}

	return models.ValidationResult{
		IsSuccess: true,
		IsMember:  isMember,
		PromoID:   promoID,
		Message:   resp.Message,
	}, nil
}

// HandleMboxAuthError turns a host outcome code into a failed result.
func (o *Orchestrator) HandleMboxAuthError(code string) models.ValidationResult {
	return o.errs.ToValidationResult(o.errs.NormalizeMboxError(code, ContextMboxAuth), o.IsMember())
}

func (o *Orchestrator) newBalance(reward float64) float64 {
	return reward + o.simulated
}

// finish claims the terminal slot and stores the result built by resolve.
// It reports whether this call won the claim.
func (o *Orchestrator) finish(ctx context.Context, flowID, owner string, resolve func() models.ValidationResult) (models.ValidationResult, bool) {
	claimed, err := o.store.ClaimTerminal(ctx, flowID)
	if err != nil {
		o.logger.Error("failed to claim flow", "flow", flowID, "error", err)
		return models.ValidationResult{}, false
	}
	if !claimed {
		metrics.FlowDuplicates.Inc()
		return models.ValidationResult{}, false
	}

	result := resolve()
	o.saveResult(ctx, flowID, result)
	o.releaseLock(owner)
	recordResult(result)
	return result, true
}

func (o *Orchestrator) saveResult(ctx context.Context, flowID string, result models.ValidationResult) {
	if err := o.store.StoreTerminalResult(context.WithoutCancel(ctx), flowID, result); err != nil {
		o.logger.Error("failed to store flow result", "flow", flowID, "error", err)
	}
}

// replay returns the result stored by whoever won the claim, waiting briefly
// when that resolution is still running.
func (o *Orchestrator) replay(ctx context.Context, flowID string) models.ValidationResult {
	var stored *models.ValidationResult
	op := func() error {
		r, err := o.store.GetTerminalResult(ctx, flowID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r == nil {
			return errors.New("flow still resolving")
		}
		stored = r
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = o.authTimeout
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		o.logger.Error("no stored result for resolved flow", "flow", flowID, "error", err)
		return o.errs.ToValidationResult(o.errs.NormalizeApplicationError(models.CodeApplicationError, ContextMboxAuth), o.IsMember())
	}

	o.logger.Info("replaying flow result", "flow", flowID)
	return *stored
}

func (o *Orchestrator) releaseLock(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.store.ReleaseSubmitLock(ctx, owner); err != nil {
		o.logger.Error("failed to release submit lock", "owner", owner, "error", err)
	}
}

func lockOwner(session models.MboxData) string {
	if session.EgmCode != "" {
		return session.EgmCode
	}
	return "kiosk"
}

func asStandardError(err error) *models.StandardError {
	var std *models.StandardError
	if errors.As(err, &std) {
		return std
	}
	return &models.StandardError{Source: models.SourceApplication, Code: models.CodeUnknownError, Message: err.Error(), Original: err}
}

func recordResult(r models.ValidationResult) {
	outcome, code := metrics.OutcomeSuccess, ""
	if !r.IsSuccess {
		outcome, code = metrics.OutcomeFailure, r.ErrorCode
	}
	metrics.FlowResults.WithLabelValues(outcome, code).Inc()
}
