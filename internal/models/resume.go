package models

import (
	"net/url"
	"strconv"
	"strings"
)

// ResumeKind tags what a page load asks the flow to do.
type ResumeKind int

const (
	// ResumeNone means no authentication is pending.
	ResumeNone ResumeKind = iota
	ResumeAuthSuccess
	ResumeAuthFailure
	ResumeAuthError
	// ResumeAuthUnknown is a status value the host contract does not define.
	ResumeAuthUnknown
)

func (k ResumeKind) String() string {
	switch k {
	case ResumeNone:
		return "none"
	case ResumeAuthSuccess:
		return "success"
	case ResumeAuthFailure:
		return "failure"
	case ResumeAuthError:
		return "error"
	default:
		return "unknown"
	}
}

// ResumeParams names the redirect query parameters and status values.
type ResumeParams struct {
	Status       string
	PromoID      string
	Code         string
	RewardType   string
	RewardValue  string
	Flow         string
	Signature    string
	SuccessValue string
	FailureValue string
	ErrorValue   string
}

// ResumeIntent is everything a redirect URL carries back into the flow.
type ResumeIntent struct {
	Kind        ResumeKind
	Status      string
	FlowID      string
	Code        string
	PromoID     int64
	RewardType  RewardType
	RewardValue float64
	Signature   string
}

// IsManualCode reports whether the flow started from a typed voucher rather
// than a list selection.
func (i ResumeIntent) IsManualCode() bool {
	return i.Code != ""
}

// ParseResumeIntent decodes redirect parameters. Numeric fields that do not
// parse are zero.
func ParseResumeIntent(q url.Values, p ResumeParams) ResumeIntent {
	status := strings.TrimSpace(q.Get(p.Status))
	if status == "" {
		return ResumeIntent{Kind: ResumeNone}
	}

	intent := ResumeIntent{
		Status:     status,
		FlowID:     q.Get(p.Flow),
		Code:       strings.TrimSpace(q.Get(p.Code)),
		RewardType: ParseRewardType(q.Get(p.RewardType)),
		Signature:  q.Get(p.Signature),
	}

	switch status {
	case p.SuccessValue:
		intent.Kind = ResumeAuthSuccess
	case p.FailureValue:
		intent.Kind = ResumeAuthFailure
	case p.ErrorValue:
		intent.Kind = ResumeAuthError
	default:
		intent.Kind = ResumeAuthUnknown
	}

	if id, err := strconv.ParseInt(q.Get(p.PromoID), 10, 64); err == nil && id > 0 {
		intent.PromoID = id
	}
	if v, err := strconv.ParseFloat(q.Get(p.RewardValue), 64); err == nil {
		intent.RewardValue = v
	}
	return intent
}
