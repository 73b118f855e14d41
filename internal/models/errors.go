package models

import (
	"fmt"
	"strconv"
)

// Backend redemption-rule codes.
const (
	CodeStimNotFound            = "JOAPI_STIM_0001"
	CodeNoClient                = "JOAPI_STIM_0002"
	CodeClientForbidden         = "JOAPI_STIM_0003"
	CodeInvalidStatus           = "JOAPI_STIM_0004"
	CodeClosed                  = "JOAPI_STIM_0005"
	CodeUsageExceeded           = "JOAPI_STIM_0006"
	CodeValidityPeriod          = "JOAPI_STIM_0007"
	CodeWrongVenue              = "JOAPI_STIM_0008"
	CodeUsageDelay              = "JOAPI_STIM_0009"
	CodeVenueMissing            = "JOAPI_STIM_0011"
	CodePeriodMissing           = "JOAPI_STIM_0012"
	CodeConsumptionVenueUnknown = "JOAPI_STIM_0013"
	CodeNotEntitled             = "JOAPI_STIM_0017"
	CodeAPICommunication        = "API_COMMUNICATION_ERROR"
)

// Host authentication codes.
const (
	CodeMboxAuthError  = "MBOX_AUTH_ERROR"
	CodePinInvalid     = "PIN_INVALID"
	CodeMboxTimeout    = "MBOX_TIMEOUT_ERROR"
	CodeMboxAuthFailed = "MBOX_AUTH_FAILED"
)

// Application codes.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeApplicationError = "APPLICATION_ERROR"
	CodeUnknownError     = "UNKNOWN_ERROR"
)

// StimCodes lists every backend business code.
var StimCodes = []string{
	CodeStimNotFound, CodeNoClient, CodeClientForbidden, CodeInvalidStatus,
	CodeClosed, CodeUsageExceeded, CodeValidityPeriod, CodeWrongVenue,
	CodeUsageDelay, CodeVenueMissing, CodePeriodMissing,
	CodeConsumptionVenueUnknown, CodeNotEntitled, CodeAPICommunication,
}

var MboxCodes = []string{CodeMboxAuthError, CodePinInvalid, CodeMboxTimeout, CodeMboxAuthFailed}

var ApplicationCodes = []string{CodeValidationError, CodeApplicationError, CodeUnknownError}

type ErrorSource string

const (
	SourceAPI         ErrorSource = "JOA_API"
	SourceMbox        ErrorSource = "MBOX_SDK"
	SourceApplication ErrorSource = "APPLICATION"
	SourceNetwork     ErrorSource = "NETWORK"
)

// StandardError is the single error shape the UI layer ever sees.
type StandardError struct {
	Source          ErrorSource `json:"source"`
	Code            string      `json:"code"`
	Message         string      `json:"message"`
	RequirePinClear bool        `json:"requirePinClear"`
	Context         string      `json:"context,omitempty"`
	Original        error       `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Context, e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Original
}

// HTTPError is a failed backend call. Status 0 means no response was received.
type HTTPError struct {
	Status  int
	Body    []byte
	Message string
}

func (e *HTTPError) Error() string {
	if e.Status == 0 {
		return "backend unreachable: " + e.Message
	}
	return "backend returned " + strconv.Itoa(e.Status) + ": " + e.Message
}

func containsCode(set []string, code string) bool {
	for _, c := range set {
		if c == code {
			return true
		}
	}
	return false
}

func IsStimCode(code string) bool        { return containsCode(StimCodes, code) }
func IsMboxCode(code string) bool        { return containsCode(MboxCodes, code) }
func IsApplicationCode(code string) bool { return containsCode(ApplicationCodes, code) }
