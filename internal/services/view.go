package services

import (
	"promo-kiosk-backend/internal/i18n"
	"promo-kiosk-backend/internal/models"
)

type Screen string

const (
	ScreenList         Screen = "list"
	ScreenPinCode      Screen = "pin-code"
	ScreenConfirmation Screen = "confirmation"
)

// PromotionView is a promotion row as the kiosk page draws it.
type PromotionView struct {
	models.Promotion
	Reward          string `json:"reward"`
	UtilisationInfo string `json:"utilisationInfo,omitempty"`
	Animated        bool   `json:"animated"`
	Clicking        bool   `json:"clicking"`
}

// KioskView is the full render state pushed to the kiosk page.
type KioskView struct {
	Screen            Screen                   `json:"screen"`
	Language          string                   `json:"language"`
	IsLoading         bool                     `json:"isLoading"`
	IsCustomer        bool                     `json:"isCustomer"`
	NotMember         bool                     `json:"notMember"`
	Error             string                   `json:"error,omitempty"`
	Promotions        []PromotionView          `json:"promotions"`
	EnterCodeEnabled  bool                     `json:"enterCodeEnabled"`
	EnterCodeAnimated bool                     `json:"enterCodeAnimated"`
	ShowPinCode       bool                     `json:"showPinCode"`
	ReadyForPinCode   bool                     `json:"readyForPinCode"`
	IsExitingPinCode  bool                     `json:"isExitingPinCode"`
	VoucherCode       string                   `json:"voucherCode"`
	CodeValid         bool                     `json:"codeValid"`
	AwaitingAuth      bool                     `json:"awaitingAuth"`
	Result            *models.ValidationResult `json:"result,omitempty"`
	Confirmation      *i18n.Confirmation       `json:"confirmation,omitempty"`
}

// ViewFormatter renders the localized parts of the view.
type ViewFormatter interface {
	FormatReward(rewardType models.RewardType, value float64, currencySymbol string) string
	UtilisationInfo(p models.Promotion) string
	ConfirmationText(r models.ValidationResult, currencySymbol string) i18n.Confirmation
	Language() string
}
