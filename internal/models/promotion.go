package models

// RewardType tells whether a promotion credits points or a currency amount.
// Wire tags differ between backends and are mapped through RewardTypeCodec.
type RewardType string

const (
	RewardPoints RewardType = "points"
	RewardAmount RewardType = "amount"
)

// RewardTypeCodec maps backend reward-type tags onto RewardType.
type RewardTypeCodec struct {
	PointTag  string
	AmountTag string
}

// Parse maps a wire tag; anything that is not the point tag is an amount.
func (c RewardTypeCodec) Parse(tag string) RewardType {
	switch tag {
	case c.PointTag, string(RewardPoints):
		return RewardPoints
	default:
		return RewardAmount
	}
}

// ParseRewardType reads the abstract form carried in redirect URLs.
func ParseRewardType(s string) RewardType {
	switch RewardType(s) {
	case RewardPoints:
		return RewardPoints
	case RewardAmount:
		return RewardAmount
	default:
		return ""
	}
}

// Utilisation holds usage counters. Effectuees + Restantes == Maximum.
type Utilisation struct {
	Effectuees int `json:"effectuees"`
	Maximum    int `json:"maximum"`
	Restantes  int `json:"restantes"`
}

type Promotion struct {
	ID          int64        `json:"id"`
	Code        string       `json:"code"`
	Title       string       `json:"title"`
	RewardType  RewardType   `json:"reward_type"`
	RewardValue float64      `json:"reward_value"`
	PromoType   string       `json:"promo_type"`
	Utilisation *Utilisation `json:"utilisation,omitempty"`
}

type PlayerStatus struct {
	IsCustomer bool   `json:"isCustomer"`
	Message    string `json:"message"`
}

// CodeValidation is the backend answer to a voucher validation.
type CodeValidation struct {
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
	Promo   *Promotion `json:"promo,omitempty"`
}

type UseResponse struct {
	Message string `json:"message"`
}
