package services

import (
	"errors"
	"log/slog"
	"regexp"

	"github.com/tidwall/gjson"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/i18n"
	"promo-kiosk-backend/internal/metrics"
	"promo-kiosk-backend/internal/models"
)

// Error contexts used in logs.
const (
	ContextPromoValidation = "PROMO_VALIDATION"
	ContextPromoApply      = "PROMO_APPLY"
	ContextMboxAuth        = "MBOX_AUTH"
	ContextHTTPRequest     = "HTTP_REQUEST"
	ContextPlayerStatus    = "PLAYER_STATUS"
	ContextPromoList       = "PROMO_LIST"
)

var stimCodePattern = regexp.MustCompile(`JOAPI_STIM_\d+`)

// defaultClearOnCodes are outcomes where retrying the same voucher cannot
// succeed, so the PIN pad is emptied.
var defaultClearOnCodes = []string{
	models.CodeClientForbidden,
	models.CodeInvalidStatus,
	models.CodeClosed,
	models.CodeUsageExceeded,
	models.CodeValidityPeriod,
	models.CodeUsageDelay,
	models.CodeVenueMissing,
	models.CodePeriodMissing,
	models.CodeConsumptionVenueUnknown,
	models.CodeNotEntitled,
	models.CodeMboxAuthError,
	models.CodePinInvalid,
}

// MessageCatalog resolves translation keys.
type MessageCatalog interface {
	Lookup(key string) (string, bool)
}

// ErrorNormalizer folds backend, host and application failures into
// models.StandardError.
type ErrorNormalizer struct {
	statusCodes map[int]string
	clearOn     map[string]struct{}
	messages    MessageCatalog
	logger      *slog.Logger
}

func NewErrorNormalizer(cfg *config.Config, messages MessageCatalog, logger *slog.Logger) *ErrorNormalizer {
	codes := cfg.Validation.ClearOnCodes
	if len(codes) == 0 {
		codes = defaultClearOnCodes
	}
	clearOn := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c != "" {
			clearOn[c] = struct{}{}
		}
	}

	statusCodes := cfg.Errors.HTTPStatusCodes
	if statusCodes == nil {
		statusCodes = map[int]string{0: models.CodeAPICommunication}
	}

	return &ErrorNormalizer{
		statusCodes: statusCodes,
		clearOn:     clearOn,
		messages:    messages,
		logger:      logger,
	}
}

// NormalizeHTTPError normalizes a failed backend call.
func (n *ErrorNormalizer) NormalizeHTTPError(err error, context string) *models.StandardError {
	var std *models.StandardError
	if errors.As(err, &std) {
		return std
	}

	code := n.extractHTTPCode(err)
	source := models.SourceAPI
	if code == models.CodeAPICommunication {
		source = models.SourceNetwork
	}

	return n.record(&models.StandardError{
		Source:   source,
		Code:     code,
		Message:  n.TranslatedMessage(code),
		Context:  context,
		Original: err,
	})
}

func (n *ErrorNormalizer) extractHTTPCode(err error) string {
	if err == nil {
		return models.CodeUnknownError
	}

	var httpErr *models.HTTPError
	if errors.As(err, &httpErr) {
		if code, ok := n.statusCodes[httpErr.Status]; ok {
			return code
		}
		if code := codeFromBody(httpErr.Body); code != "" {
			return code
		}
		if code := stimCodePattern.FindString(string(httpErr.Body)); code != "" {
			return code
		}
	}

	if code := stimCodePattern.FindString(err.Error()); code != "" {
		return code
	}
	return models.CodeUnknownError
}

// codeFromBody reads {code}, {error: {code}} or either of them encoded as a
// JSON string.
func codeFromBody(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	doc := gjson.ParseBytes(body)
	if doc.Type == gjson.String {
		if !gjson.Valid(doc.Str) {
			return ""
		}
		doc = gjson.Parse(doc.Str)
	}
	for _, path := range []string{"code", "error.code"} {
		if v := doc.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// NormalizeMboxError accepts a host code, an error or a StandardError and
// maps it onto the host code set. Anything unrecognized is MBOX_AUTH_ERROR.
func (n *ErrorNormalizer) NormalizeMboxError(v any, context string) *models.StandardError {
	code := models.CodeMboxAuthError
	var original error

	switch e := v.(type) {
	case string:
		if models.IsMboxCode(e) {
			code = e
		}
	case error:
		original = e
		var std *models.StandardError
		if errors.As(e, &std) && models.IsMboxCode(std.Code) {
			code = std.Code
		} else if models.IsMboxCode(e.Error()) {
			code = e.Error()
		}
	}

	return n.record(&models.StandardError{
		Source:   models.SourceMbox,
		Code:     code,
		Message:  n.TranslatedMessage(code),
		Context:  context,
		Original: original,
	})
}

// NormalizeApplicationError normalizes an internally raised failure. Known
// application or backend codes are kept; a free-form message is kept as the
// message with UNKNOWN_ERROR as the code.
func (n *ErrorNormalizer) NormalizeApplicationError(v any, context string) *models.StandardError {
	code := models.CodeUnknownError
	var message string
	var original error

	switch e := v.(type) {
	case string:
		if isKnownAppCode(e) {
			code = e
		} else {
			message = e
		}
	case *models.StandardError:
		original = e
		message = e.Message
		if isKnownAppCode(e.Code) {
			code = e.Code
		}
	case error:
		original = e
		message = e.Error()
	}

	if message == "" {
		message = n.TranslatedMessage(code)
	}

	return n.record(&models.StandardError{
		Source:   models.SourceApplication,
		Code:     code,
		Message:  message,
		Context:  context,
		Original: original,
	})
}

func isKnownAppCode(code string) bool {
	return models.IsApplicationCode(code) || models.IsStimCode(code)
}

// ShouldClearPinCode reports whether code empties the PIN pad.
func (n *ErrorNormalizer) ShouldClearPinCode(code string) bool {
	_, ok := n.clearOn[code]
	return ok
}

// ToValidationResult wraps a normalized error into a failed result.
func (n *ErrorNormalizer) ToValidationResult(err *models.StandardError, isMember bool) models.ValidationResult {
	result := models.ValidationResult{
		IsSuccess:    false,
		IsMember:     isMember,
		ErrorCode:    models.CodeUnknownError,
		ErrorMessage: n.TranslatedMessage(models.CodeUnknownError),
	}
	if err == nil {
		return result
	}
	if err.Code != "" {
		result.ErrorCode = err.Code
	}
	if err.Message != "" {
		result.ErrorMessage = err.Message
	}
	return result
}

// TranslatedMessage returns the message for code, falling back to the
// unknown-error message.
func (n *ErrorNormalizer) TranslatedMessage(code string) string {
	if n.messages == nil {
		return code
	}
	if msg, ok := n.messages.Lookup(i18n.KeyErrorPrefix + code); ok {
		return msg
	}
	if msg, ok := n.messages.Lookup(i18n.KeyUnknownError); ok {
		return msg
	}
	return code
}

func (n *ErrorNormalizer) record(e *models.StandardError) *models.StandardError {
	e.RequirePinClear = n.ShouldClearPinCode(e.Code)
	context := e.Context
	if context == "" {
		context = "UNKNOWN"
	}

	metrics.NormalizedErrors.WithLabelValues(string(e.Source), e.Code).Inc()
	n.logger.Error("normalized error",
		"context", context,
		"code", e.Code,
		"source", e.Source,
		"message", e.Message,
		"error", e.Original,
	)
	return e
}
