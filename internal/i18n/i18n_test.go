package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

func newTestFormatter(t *testing.T) (*Translator, *Formatter) {
	t.Helper()
	cfg := &config.Config{
		Localization: config.LocalizationConfig{
			SupportedLanguages:    []string{"fr", "en", "de"},
			DefaultLanguage:       "en",
			DefaultCurrencySymbol: "€",
		},
		Promo:    config.PromoConfig{HideUsageIfMaxOne: true},
		Features: config.FeatureConfig{ShowUtilisationInfo: true},
	}
	tr, err := NewTranslator(cfg.Localization)
	require.NoError(t, err)
	return tr, NewFormatter(tr, cfg)
}

func TestTranslatorFollowsSession(t *testing.T) {
	tr, _ := newTestFormatter(t)

	tr.OnSession(models.MboxData{TwoLetterISOLanguageName: "FR"})
	assert.Equal(t, language.French, tr.Language())
	assert.Equal(t, "Code PIN invalide", tr.T("Errors.PIN_INVALID"))

	tr.OnSession(models.MboxData{TwoLetterISOLanguageName: ""})
	assert.Equal(t, language.English, tr.Language())

	tr.Use("zz")
	assert.Equal(t, language.English, tr.Language())
}

func TestTranslatorLookupFallsBackToEnglish(t *testing.T) {
	tr, _ := newTestFormatter(t)
	tr.Use("de")

	msg, ok := tr.Lookup("Errors.PIN_INVALID")
	assert.True(t, ok)
	assert.Equal(t, "Invalid PIN", msg)

	_, ok = tr.Lookup("Errors.NOT_A_CODE")
	assert.False(t, ok)
}

func TestFormatReward(t *testing.T) {
	tr, f := newTestFormatter(t)

	tr.Use("en")
	assert.Equal(t, "1,500 bonus points", f.FormatReward(models.RewardPoints, 1500, "€"))
	assert.Equal(t, "€20 to play", f.FormatReward(models.RewardAmount, 20, "€"))
	assert.Equal(t, "€20 to play", f.FormatReward(models.RewardAmount, 20, ""), "default symbol")

	tr.Use("fr")
	assert.Equal(t, "20 $ à jouer", f.FormatReward(models.RewardAmount, 20, "$"))
}

func TestUtilisationInfo(t *testing.T) {
	tr, f := newTestFormatter(t)
	tr.Use("en")

	assert.Empty(t, f.UtilisationInfo(models.Promotion{}))
	assert.Empty(t, f.UtilisationInfo(models.Promotion{Utilisation: &models.Utilisation{Effectuees: 0, Maximum: 1, Restantes: 1}}))
	assert.Equal(t, "2 of 3 uses left",
		f.UtilisationInfo(models.Promotion{Utilisation: &models.Utilisation{Effectuees: 1, Maximum: 3, Restantes: 2}}))
}

func TestConfirmationText(t *testing.T) {
	tr, f := newTestFormatter(t)
	tr.Use("en")

	failed := f.ConfirmationText(models.ValidationResult{ErrorMessage: "Invalid PIN"}, "€")
	assert.Equal(t, "Sorry", failed.Title)
	assert.Equal(t, "Invalid PIN", failed.Message)

	member := f.ConfirmationText(models.ValidationResult{
		IsSuccess: true, IsMember: true, RewardType: models.RewardPoints, RewardValue: 100, NewBalance: 1100,
	}, "€")
	assert.Equal(t, "100 bonus points have been credited to your account", member.Message)
	assert.Equal(t, "Your points balance is now 1,100 bonus points", member.SubMessage)

	guest := f.ConfirmationText(models.ValidationResult{IsSuccess: true, RewardType: models.RewardAmount, RewardValue: 5}, "€")
	assert.Equal(t, "€5 to play have been credited to this machine", guest.Message)
	assert.Empty(t, guest.SubMessage)
}
