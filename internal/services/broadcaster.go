package services

import (
	"context"

	"promo-kiosk-backend/internal/models"
)

// PromoBackend is the promotion REST API.
type PromoBackend interface {
	CheckPlayerStatus(ctx context.Context, playerID string) (models.PlayerStatus, error)
	GetPlayerPromos(ctx context.Context, playerID string) ([]models.Promotion, error)
	ValidateCode(ctx context.Context, code, playerID string) (models.CodeValidation, error)
	UsePromo(ctx context.Context, promoID int64) (models.UseResponse, error)
}

// PlayerAuthBridge asks the host to run PIN entry. It returns as soon as the
// command is handed over; the outcome comes back later as a redirect.
type PlayerAuthBridge interface {
	RequestPlayerPin(ctx context.Context, cmd models.PlayerPinCommand) error
}

// Broadcaster pushes kiosk view updates to connected screens.
type Broadcaster interface {
	BroadcastView(view KioskView)
}
