package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

var (
	ErrUnknownPromotion   = errors.New("unknown promotion")
	ErrInvalidVoucherCode = errors.New("voucher code does not match the expected format")
	ErrManualCodeDisabled = errors.New("manual code input is disabled")
	ErrInvalidPinPadInput = errors.New("pin pad accepts a single ASCII letter or digit")
)

// Controller owns the promotion list lifecycle of the kiosk: loading, list
// selection, the PIN screen and the confirmation screen. It is the single
// writer of the kiosk view.
type Controller struct {
	orch     *Orchestrator
	backend  PromoBackend
	anim     *CascadeAnimator
	errs     *ErrorNormalizer
	session  *SessionStore
	format   ViewFormatter
	pattern  *models.VoucherPattern
	logger   *slog.Logger
	animCfg  config.AnimationConfig
	features config.FeatureConfig
	params   models.ResumeParams

	ctx  context.Context
	stop context.CancelFunc

	mu               sync.Mutex
	screen           Screen
	promotions       []models.Promotion
	isCustomer       bool
	isLoading        bool
	loadErr          string
	showPinCode      bool
	readyForPinCode  bool
	isExitingPinCode bool
	voucher          string
	awaitingFlow     string
	result           *models.ValidationResult
	owner            string
	sessionSeen      bool
	loadGen          uint64
	loadCancel       context.CancelFunc
	unsubscribe      func()

	broadcaster Broadcaster
	dirty       chan struct{}
}

func NewController(
	cfg *config.Config,
	orch *Orchestrator,
	backend PromoBackend,
	anim *CascadeAnimator,
	errs *ErrorNormalizer,
	session *SessionStore,
	format ViewFormatter,
	logger *slog.Logger,
) (*Controller, error) {
	pattern, err := models.CompileVoucherPattern(cfg.Validation.CodePattern)
	if err != nil {
		return nil, fmt.Errorf("voucher pattern: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		orch:     orch,
		backend:  backend,
		anim:     anim,
		errs:     errs,
		session:  session,
		format:   format,
		pattern:  pattern,
		logger:   logger,
		animCfg:  cfg.Animations,
		features: cfg.Features,
		params:   ResumeParamsFrom(cfg.Mbox),
		ctx:      ctx,
		stop:     stop,
		screen:   ScreenList,
		dirty:    make(chan struct{}, 1),
	}, nil
}

// ResumeParamsFrom maps the host contract configuration onto redirect
// parameter names.
func ResumeParamsFrom(m config.MboxConfig) models.ResumeParams {
	return models.ResumeParams{
		Status:       m.StatusParam,
		PromoID:      m.PromoIDParam,
		Code:         m.CodeParam,
		RewardType:   m.RewardTypeParam,
		RewardValue:  m.RewardValueParam,
		Flow:         m.FlowParam,
		Signature:    m.SignatureParam,
		SuccessValue: m.SuccessValue,
		FailureValue: m.FailureValue,
		ErrorValue:   m.ErrorValue,
	}
}

// Init wires the controller to its collaborators and starts watching the
// session. A player change reloads the list.
func (c *Controller) Init(b Broadcaster) {
	c.mu.Lock()
	c.broadcaster = b
	c.mu.Unlock()

	if b != nil {
		go c.publishLoop()
	}

	c.anim.OnChange(c.publish)
	c.orch.OnTimeout(c.onAuthTimeout)

	unsubscribe := c.session.Subscribe(c.onSession)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

func (c *Controller) onSession(data models.MboxData) {
	c.mu.Lock()
	changed := !c.sessionSeen || data.OwnerID != c.owner
	c.sessionSeen = true
	c.owner = data.OwnerID
	c.mu.Unlock()

	if changed {
		go c.LoadPlayerData(c.ctx)
	}
	c.publish()
}

// LoadPlayerData resolves the player and loads the list. Anonymous sessions
// never reach the backend.
func (c *Controller) LoadPlayerData(ctx context.Context) models.PlayerStatus {
	ctx, gen := c.beginLoad(ctx)

	if !c.orch.IsMember() {
		c.endLoad(gen, func() {
			c.isCustomer = false
			c.promotions = nil
		})
		return models.PlayerStatus{IsCustomer: false}
	}

	playerID := c.session.Snapshot().OwnerID
	status, err := c.backend.CheckPlayerStatus(ctx, playerID)
	if err != nil {
		if ctx.Err() == nil {
			std := c.errs.NormalizeHTTPError(err, ContextPlayerStatus)
			c.endLoad(gen, func() {
				c.isCustomer = false
				c.loadErr = std.Message
			})
		}
		return models.PlayerStatus{IsCustomer: false}
	}

	if !status.IsCustomer {
		c.logger.Warn("identified player is not a customer", "player", playerID, "message", status.Message)
		std := c.errs.NormalizeApplicationError(models.CodeUnknownError, ContextPlayerStatus)
		c.endLoad(gen, func() {
			c.isCustomer = false
			c.loadErr = std.Message
		})
		return status
	}

	c.mu.Lock()
	if gen == c.loadGen {
		c.isCustomer = true
	}
	c.mu.Unlock()

	c.loadPromotions(ctx, gen, playerID)
	return status
}

// LoadPromotions reloads the list for the current player.
func (c *Controller) LoadPromotions(ctx context.Context) error {
	ctx, gen := c.beginLoad(ctx)
	return c.loadPromotions(ctx, gen, c.session.Snapshot().OwnerID)
}

func (c *Controller) loadPromotions(ctx context.Context, gen uint64, playerID string) error {
	promos, err := c.backend.GetPlayerPromos(ctx, playerID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		std := c.errs.NormalizeHTTPError(err, ContextPromoList)
		c.endLoad(gen, func() {
			c.promotions = nil
			c.loadErr = std.Message
		})
		return std
	}

	c.endLoad(gen, func() {
		c.promotions = promos
	})
	return nil
}

// beginLoad cancels the previous load and starts a new generation.
func (c *Controller) beginLoad(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	if c.loadCancel != nil {
		c.loadCancel()
	}
	c.loadCancel = cancel
	c.loadGen++
	gen := c.loadGen
	c.isLoading = true
	c.loadErr = ""
	c.mu.Unlock()

	c.publish()
	return ctx, gen
}

// endLoad applies fn unless a newer load superseded this one.
func (c *Controller) endLoad(gen uint64, fn func()) {
	c.mu.Lock()
	if gen != c.loadGen {
		c.mu.Unlock()
		return
	}
	fn()
	c.isLoading = false
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.mu.Unlock()
	c.publish()
}

// SelectPromotion starts PIN authentication for a listed promotion.
func (c *Controller) SelectPromotion(ctx context.Context, promoID int64) error {
	c.mu.Lock()
	var promo *models.Promotion
	for i := range c.promotions {
		if c.promotions[i].ID == promoID {
			promo = &c.promotions[i]
			break
		}
	}
	busy := c.awaitingFlow != ""
	c.mu.Unlock()

	if promo == nil {
		return ErrUnknownPromotion
	}
	c.anim.ApplyClickAnimation(promoKey(promoID))
	if busy {
		return nil
	}

	return c.requestAuth(ctx, AuthTarget{
		PromoID:     promo.ID,
		RewardType:  promo.RewardType,
		RewardValue: promo.RewardValue,
	})
}

// ShowEnterCode runs the list cascade and opens the PIN screen. The channel
// closes once the screen is shown, right away when a cascade is already
// running, or when the controller is closed.
func (c *Controller) ShowEnterCode() (<-chan struct{}, error) {
	if !c.features.ManualCodeInput {
		return nil, ErrManualCodeDisabled
	}

	c.mu.Lock()
	count := len(c.promotions)
	c.mu.Unlock()

	done, finish := c.transition()
	cascade := c.anim.StartCascade(count)
	go func() {
		n := <-cascade
		if n == 0 {
			finish()
			return
		}
		c.after(time.Duration(n-1)*c.animCfg.ItemDelay, func() {
			c.mu.Lock()
			c.readyForPinCode = true
			c.mu.Unlock()
			c.publish()

			c.after(c.animCfg.FinalDelay/8, func() {
				c.mu.Lock()
				c.showPinCode = true
				c.isExitingPinCode = false
				c.screen = ScreenPinCode
				c.mu.Unlock()
				c.publish()
				finish()
			})
		})
	}()
	return done, nil
}

// HideEnterCode leaves the PIN screen with the reverse cascade.
func (c *Controller) HideEnterCode() <-chan struct{} {
	c.mu.Lock()
	c.isExitingPinCode = true
	c.readyForPinCode = false
	count := len(c.promotions)
	c.mu.Unlock()
	c.publish()

	c.anim.Reset()
	reverse := c.anim.StartReverseCascade(count)

	done, finish := c.transition()
	go func() {
		n := <-reverse
		c.after(time.Duration(n-1)*c.animCfg.ReturnItemDelay+c.animCfg.ViewTransition, func() {
			c.mu.Lock()
			c.showPinCode = false
			c.isExitingPinCode = false
			if c.screen == ScreenPinCode {
				c.screen = ScreenList
			}
			c.mu.Unlock()
			c.anim.Reset()
			c.publish()
			finish()
		})
	}()
	return done
}

// AppendDigit types one character on the PIN pad.
func (c *Controller) AppendDigit(key string) error {
	if len(key) != 1 || !isPinPadKey(key[0]) {
		return ErrInvalidPinPadInput
	}

	c.mu.Lock()
	c.voucher = models.FormatVoucherCode(c.voucher + key)
	c.mu.Unlock()
	c.publish()
	return nil
}

func (c *Controller) Backspace() {
	c.mu.Lock()
	c.voucher = models.RemoveLastVoucherChar(c.voucher)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) ClearCode() {
	c.mu.Lock()
	c.voucher = ""
	c.mu.Unlock()
	c.publish()
}

// SubmitCode starts PIN authentication for the typed voucher. Validation
// happens after the host redirect.
func (c *Controller) SubmitCode(ctx context.Context) error {
	c.mu.Lock()
	code := c.voucher
	busy := c.awaitingFlow != ""
	c.mu.Unlock()

	if !c.pattern.Matches(code) {
		return ErrInvalidVoucherCode
	}
	if busy {
		return nil
	}
	return c.requestAuth(ctx, AuthTarget{Code: code})
}

func (c *Controller) requestAuth(ctx context.Context, target AuthTarget) error {
	flowID, err := c.orch.RequestAuthentication(ctx, target)
	if errors.Is(err, ErrSubmitInProgress) {
		return nil
	}
	var std *models.StandardError
	if errors.As(err, &std) {
		c.showResult(c.errs.ToValidationResult(std, c.orch.IsMember()))
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.awaitingFlow = flowID
	c.mu.Unlock()
	c.publish()
	return nil
}

// HandleParams resumes a flow from redirect query parameters. It reports
// false when the parameters carry no authentication outcome.
func (c *Controller) HandleParams(ctx context.Context, query url.Values) (models.ValidationResult, bool) {
	intent := models.ParseResumeIntent(query, c.params)
	if intent.Kind == models.ResumeNone {
		return models.ValidationResult{}, false
	}

	c.logger.Info("resuming flow", "flow", intent.FlowID, "status", intent.Kind.String())
	result := c.orch.Resume(ctx, intent)
	c.showResult(result)
	return result, true
}

func (c *Controller) onAuthTimeout(flowID string, result models.ValidationResult) {
	c.mu.Lock()
	current := c.awaitingFlow == flowID
	c.mu.Unlock()

	if current {
		c.showResult(result)
	}
}

// showResult leaves the PIN screen and shows the confirmation after the view
// transition. Successful redemptions reload the list.
func (c *Controller) showResult(r models.ValidationResult) {
	c.mu.Lock()
	c.awaitingFlow = ""
	if r.IsSuccess || c.errs.ShouldClearPinCode(r.ErrorCode) {
		c.voucher = ""
	}
	fromPin := c.showPinCode
	c.isExitingPinCode = fromPin
	c.readyForPinCode = false
	count := len(c.promotions)
	c.mu.Unlock()
	c.publish()

	if fromPin {
		c.anim.Reset()
		c.anim.StartReverseCascade(count)
	}

	c.after(c.animCfg.ViewTransition, func() {
		c.mu.Lock()
		c.showPinCode = false
		c.isExitingPinCode = false
		c.result = &r
		c.screen = ScreenConfirmation
		c.mu.Unlock()
		c.anim.Reset()
		c.publish()
	})

	if r.IsSuccess {
		go c.LoadPlayerData(c.ctx)
	}
}

// CloseConfirmation returns to the list.
func (c *Controller) CloseConfirmation() {
	c.mu.Lock()
	c.result = nil
	c.screen = ScreenList
	c.mu.Unlock()
	c.publish()
}

// View renders the current state.
func (c *Controller) View() KioskView {
	session := c.session.Snapshot()
	isMember := c.orch.IsMember()

	c.mu.Lock()
	view := KioskView{
		Screen:           c.screen,
		Language:         c.format.Language(),
		IsLoading:        c.isLoading,
		IsCustomer:       c.isCustomer,
		NotMember:        !isMember,
		Error:            c.loadErr,
		EnterCodeEnabled: c.features.ManualCodeInput,
		ShowPinCode:      c.showPinCode,
		ReadyForPinCode:  c.readyForPinCode,
		IsExitingPinCode: c.isExitingPinCode,
		VoucherCode:      c.voucher,
		CodeValid:        c.pattern.Matches(c.voucher),
		AwaitingAuth:     c.awaitingFlow != "",
	}
	promos := c.promotions
	if c.result != nil {
		r := *c.result
		view.Result = &r
	}
	c.mu.Unlock()

	view.Promotions = make([]PromotionView, 0, len(promos))
	for i, p := range promos {
		view.Promotions = append(view.Promotions, PromotionView{
			Promotion:       p,
			Reward:          c.format.FormatReward(p.RewardType, p.RewardValue, session.CasinoCurrencySymbol),
			UtilisationInfo: c.format.UtilisationInfo(p),
			Animated:        c.anim.AnimateItem(i),
			Clicking:        c.anim.IsClicking(promoKey(p.ID)),
		})
	}
	view.EnterCodeAnimated = c.anim.AnimateItem(len(promos))

	if view.Result != nil {
		text := c.format.ConfirmationText(*view.Result, session.CasinoCurrencySymbol)
		view.Confirmation = &text
	}
	return view
}

// Close tears the controller down: the session watch, in-flight loads,
// transition timers and the pending authentication timeout.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.stop()
	c.orch.Close()
	c.anim.Close()
}

// transition returns a channel that finish closes. Closing the controller
// closes it as well, since the timers that would call finish are skipped.
func (c *Controller) transition() (<-chan struct{}, func()) {
	done := make(chan struct{})
	closeDone := sync.OnceFunc(func() { close(done) })
	stop := context.AfterFunc(c.ctx, closeDone)
	return done, func() {
		stop()
		closeDone()
	}
}

// after runs fn once d has elapsed, unless the controller was closed.
func (c *Controller) after(d time.Duration, fn func()) {
	if d <= 0 {
		if c.ctx.Err() == nil {
			fn()
		}
		return
	}
	time.AfterFunc(d, func() {
		if c.ctx.Err() == nil {
			fn()
		}
	})
}

func (c *Controller) publish() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// publishLoop coalesces change notifications into view broadcasts.
func (c *Controller) publishLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.dirty:
			c.mu.Lock()
			b := c.broadcaster
			c.mu.Unlock()
			if b != nil {
				b.BroadcastView(c.View())
			}
		}
	}
}

func isPinPadKey(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func promoKey(id int64) string {
	return "promo:" + strconv.FormatInt(id, 10)
}
