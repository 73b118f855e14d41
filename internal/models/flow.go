package models

import "time"

// PendingFlow is an authentication request waiting for the host redirect.
type PendingFlow struct {
	ID          string     `json:"id"`
	PromoID     int64      `json:"promoId,omitempty"`
	Code        string     `json:"code,omitempty"`
	RewardType  RewardType `json:"rewardType,omitempty"`
	RewardValue float64    `json:"rewardValue,omitempty"`
	PlayerID    string     `json:"playerId"`
	LockOwner   string     `json:"lockOwner,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}
