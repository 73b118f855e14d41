package models

const (
	MessageTypeMboxData         = "mbox-data"
	MessageTypeRequestPlayerPin = "request-player-pin"
)

// MboxData is the host session context of the kiosk.
type MboxData struct {
	OwnerID                  string `json:"ownerId"`
	TwoLetterISOLanguageName string `json:"twoLetterISOLanguageName"`
	CasinoCurrencySymbol     string `json:"casinoCurrencySymbol"`
	EgmCode                  string `json:"egmCode"`
	CasinoID                 string `json:"casinoId"`
}

// MboxMessage is an inbound host message. Absent fields keep their current
// value when applied to a snapshot.
type MboxMessage struct {
	MessageType              string  `json:"messageType"`
	OwnerID                  *string `json:"ownerId,omitempty"`
	TwoLetterISOLanguageName *string `json:"twoLetterISOLanguageName,omitempty"`
	CasinoCurrencySymbol     *string `json:"casinoCurrencySymbol,omitempty"`
	EgmCode                  *string `json:"egmCode,omitempty"`
	CasinoID                 *string `json:"casinoId,omitempty"`
}

// Apply returns a new snapshot with the message fields merged over base.
func (m MboxMessage) Apply(base MboxData) MboxData {
	next := base
	if m.OwnerID != nil {
		next.OwnerID = *m.OwnerID
	}
	if m.TwoLetterISOLanguageName != nil {
		next.TwoLetterISOLanguageName = *m.TwoLetterISOLanguageName
	}
	if m.CasinoCurrencySymbol != nil {
		next.CasinoCurrencySymbol = *m.CasinoCurrencySymbol
	}
	if m.EgmCode != nil {
		next.EgmCode = *m.EgmCode
	}
	if m.CasinoID != nil {
		next.CasinoID = *m.CasinoID
	}
	return next
}

// PlayerPinCommand is the outbound host command that starts PIN entry.
type PlayerPinCommand struct {
	MessageType   string            `json:"messageType"`
	AppName       string            `json:"appName"`
	URLOnSuccess  string            `json:"urlOnSuccess"`
	URLOnFailure  string            `json:"urlOnFailure"`
	URLOnError    string            `json:"urlOnError"`
	CustomPayload map[string]string `json:"customPayload,omitempty"`
}
