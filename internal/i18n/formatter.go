package i18n

import (
	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

// Formatter renders rewards, usage counters and confirmation texts.
type Formatter struct {
	tr       *Translator
	promo    config.PromoConfig
	features config.FeatureConfig
	currency string
}

func NewFormatter(tr *Translator, cfg *config.Config) *Formatter {
	return &Formatter{
		tr:       tr,
		promo:    cfg.Promo,
		features: cfg.Features,
		currency: cfg.Localization.DefaultCurrencySymbol,
	}
}

// FormatReward renders a reward. An empty currency symbol falls back to the
// configured default.
func (f *Formatter) FormatReward(rewardType models.RewardType, value float64, currencySymbol string) string {
	if rewardType == models.RewardPoints {
		return f.tr.T(KeyBonusPoints, f.tr.Number(value))
	}
	return f.tr.T(KeyCashReward, f.FormatAmount(value, currencySymbol))
}

// FormatAmount renders a currency amount without decimals, placing the symbol
// the way the current language does.
func (f *Formatter) FormatAmount(value float64, currencySymbol string) string {
	if currencySymbol == "" {
		currencySymbol = f.currency
	}
	return f.tr.T(KeyCurrencyFormat, f.tr.Number(value), currencySymbol)
}

// UtilisationInfo renders the remaining uses, or "" when the counter should
// not be shown.
func (f *Formatter) UtilisationInfo(p models.Promotion) string {
	if p.Utilisation == nil || !f.features.ShowUtilisationInfo {
		return ""
	}
	if p.Utilisation.Maximum == 1 && f.promo.HideUsageIfMaxOne {
		return ""
	}
	return f.tr.T(KeyUtilisationInfo, p.Utilisation.Restantes, p.Utilisation.Maximum)
}

// Confirmation is the text of the confirmation screen.
type Confirmation struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	SubMessage string `json:"subMessage,omitempty"`
}

// ConfirmationText builds the confirmation screen for a terminal result.
func (f *Formatter) ConfirmationText(r models.ValidationResult, currencySymbol string) Confirmation {
	if !r.IsSuccess {
		msg := r.ErrorMessage
		if msg == "" {
			msg = f.tr.T(KeyGenericError)
		}
		return Confirmation{
			Title:   f.tr.T(KeyErrorTitle),
			Message: f.tr.T(KeyErrorMessage, msg),
		}
	}

	rewardType := r.RewardType
	if rewardType == "" {
		rewardType = models.RewardPoints
	}
	reward := f.FormatReward(rewardType, r.RewardValue, currencySymbol)

	if !r.IsMember {
		return Confirmation{
			Title:   f.tr.T(KeySuccessTitle),
			Message: f.tr.T(KeyNonMemberSuccess, reward),
		}
	}

	balanceLabel := f.tr.T(KeyCashBalance)
	balance := f.FormatAmount(r.NewBalance, currencySymbol)
	if rewardType == models.RewardPoints {
		balanceLabel = f.tr.T(KeyPointsBalance)
		balance = f.tr.T(KeyBonusPoints, f.tr.Number(r.NewBalance))
	}

	return Confirmation{
		Title:      f.tr.T(KeySuccessTitle),
		Message:    f.tr.T(KeyMemberSuccess, reward),
		SubMessage: f.tr.T(KeyBalanceMessage, balanceLabel, balance),
	}
}

// Language is the BCP 47 tag of the language in use.
func (f *Formatter) Language() string {
	return f.tr.Language().String()
}
