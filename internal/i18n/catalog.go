package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

// Message keys used outside the error table.
const (
	KeyBonusPoints      = "PromoList.bonusPoints"
	KeyCashReward       = "PromoList.cashReward"
	KeyCurrencyFormat   = "PromoList.currencyFormat"
	KeyUtilisationInfo  = "PromoList.utilisationInfo"
	KeyNotMember        = "PromoList.notMember"
	KeySuccessTitle     = "Confirmation.successTitle"
	KeyErrorTitle       = "Confirmation.errorTitle"
	KeyMemberSuccess    = "Confirmation.memberSuccessMessage"
	KeyNonMemberSuccess = "Confirmation.nonMemberSuccessMessage"
	KeyBalanceMessage   = "Confirmation.balanceMessage"
	KeyPointsBalance    = "Confirmation.pointsBalance"
	KeyCashBalance      = "Confirmation.cashBalance"
	KeyErrorMessage     = "Confirmation.errorMessage"
	KeyGenericError     = "Confirmation.genericError"
	KeyErrorPrefix      = "Errors."
	KeyUnknownError     = "Errors.UNKNOWN_ERROR"
)

type entry struct {
	key string
	msg string
}

var english = []entry{
	{KeyBonusPoints, "%v bonus points"},
	{KeyCashReward, "%s to play"},
	{KeyCurrencyFormat, "%[2]s%[1]s"},
	{KeyUtilisationInfo, "%d of %d uses left"},
	{KeyNotMember, "Sign in with your player card to see your promotions"},
	{KeySuccessTitle, "Congratulations!"},
	{KeyErrorTitle, "Sorry"},
	{KeyMemberSuccess, "%s have been credited to your account"},
	{KeyNonMemberSuccess, "%s have been credited to this machine"},
	{KeyBalanceMessage, "Your %s is now %s"},
	{KeyPointsBalance, "points balance"},
	{KeyCashBalance, "cash balance"},
	{KeyErrorMessage, "%s"},
	{KeyGenericError, "Something went wrong"},
	{"Errors.JOAPI_STIM_0001", "This promotion does not exist"},
	{"Errors.JOAPI_STIM_0002", "No player matches this promotion"},
	{"Errors.JOAPI_STIM_0003", "You are not allowed to use this promotion"},
	{"Errors.JOAPI_STIM_0004", "This promotion is not available"},
	{"Errors.JOAPI_STIM_0005", "This promotion is closed"},
	{"Errors.JOAPI_STIM_0006", "This promotion has already been used the maximum number of times"},
	{"Errors.JOAPI_STIM_0007", "This promotion is outside its validity period"},
	{"Errors.JOAPI_STIM_0008", "This promotion cannot be used in this casino"},
	{"Errors.JOAPI_STIM_0009", "This promotion cannot be used yet"},
	{"Errors.JOAPI_STIM_0011", "No casino is set for this promotion"},
	{"Errors.JOAPI_STIM_0012", "No validity period is set for this promotion"},
	{"Errors.JOAPI_STIM_0013", "Unknown casino for this promotion"},
	{"Errors.JOAPI_STIM_0017", "You are not entitled to this promotion"},
	{"Errors.API_COMMUNICATION_ERROR", "The promotion service cannot be reached"},
	{"Errors.MBOX_AUTH_ERROR", "Player authentication failed"},
	{"Errors.MBOX_AUTH_FAILED", "Player authentication was refused"},
	{"Errors.PIN_INVALID", "Invalid PIN"},
	{"Errors.MBOX_TIMEOUT_ERROR", "Player authentication timed out"},
	{"Errors.VALIDATION_ERROR", "This code cannot be used"},
	{"Errors.APPLICATION_ERROR", "The promotion could not be applied"},
	{"Errors.UNKNOWN_ERROR", "An unexpected error occurred"},
}

var french = []entry{
	{KeyBonusPoints, "%v points bonus"},
	{KeyCashReward, "%s à jouer"},
	{KeyCurrencyFormat, "%[1]s %[2]s"},
	{KeyUtilisationInfo, "%d utilisation(s) restante(s) sur %d"},
	{KeyNotMember, "Identifiez-vous avec votre carte joueur pour voir vos promotions"},
	{KeySuccessTitle, "Félicitations !"},
	{KeyErrorTitle, "Désolé"},
	{KeyMemberSuccess, "%s ont été crédités sur votre compte"},
	{KeyNonMemberSuccess, "%s ont été crédités sur cette machine"},
	{KeyBalanceMessage, "Votre %s est maintenant de %s"},
	{KeyPointsBalance, "solde de points"},
	{KeyCashBalance, "solde"},
	{KeyGenericError, "Une erreur est survenue"},
	{"Errors.JOAPI_STIM_0001", "Cette promotion n'existe pas"},
	{"Errors.JOAPI_STIM_0003", "Vous n'êtes pas autorisé à utiliser cette promotion"},
	{"Errors.JOAPI_STIM_0005", "Cette promotion est clôturée"},
	{"Errors.JOAPI_STIM_0006", "Cette promotion a atteint son nombre maximum d'utilisations"},
	{"Errors.JOAPI_STIM_0007", "Cette promotion est hors de sa période de validité"},
	{"Errors.JOAPI_STIM_0017", "Vous n'êtes pas habilité à utiliser cette promotion"},
	{"Errors.API_COMMUNICATION_ERROR", "Le service des promotions est injoignable"},
	{"Errors.MBOX_AUTH_ERROR", "L'authentification du joueur a échoué"},
	{"Errors.PIN_INVALID", "Code PIN invalide"},
	{"Errors.MBOX_TIMEOUT_ERROR", "L'authentification du joueur a expiré"},
	{"Errors.UNKNOWN_ERROR", "Une erreur inattendue est survenue"},
}

var translations = map[language.Tag][]entry{
	language.English: english,
	language.French:  french,
}

// newCatalog builds the message catalog and records which keys each language
// defines, so lookups can fall back to English per key.
func newCatalog() (*catalog.Builder, map[language.Tag]map[string]struct{}, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	keys := make(map[language.Tag]map[string]struct{}, len(translations))

	for tag, entries := range translations {
		set := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if err := b.SetString(tag, e.key, e.msg); err != nil {
				return nil, nil, err
			}
			set[e.key] = struct{}{}
		}
		keys[tag] = set
	}
	return b, keys, nil
}
