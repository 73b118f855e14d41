package models

// ValidationResult is the outcome of one step of the promotion flow. Results
// are never mutated; richer successors are built by copying.
type ValidationResult struct {
	IsSuccess    bool       `json:"isSuccess"`
	IsMember     bool       `json:"isMember"`
	RewardValue  float64    `json:"rewardValue,omitempty"`
	RewardType   RewardType `json:"rewardType,omitempty"`
	NewBalance   float64    `json:"newBalance,omitempty"`
	PromoID      int64      `json:"promoId,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// PlayerAuthRequest is built right before asking the host for a PIN and
// dropped afterwards.
type PlayerAuthRequest struct {
	PromoID       int64
	URLOnSuccess  string
	URLOnFailure  string
	URLOnError    string
	CustomPayload map[string]string
}
