package backend

import (
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

// StimMapper turns raw stim records into promotions using configured field
// paths. Each field falls back to the plain promotion key, so records that
// are already promotion-shaped map too.
type StimMapper struct {
	cfg   config.MappingConfig
	codec models.RewardTypeCodec
}

func NewStimMapper(cfg config.MappingConfig) *StimMapper {
	return &StimMapper{
		cfg: cfg,
		codec: models.RewardTypeCodec{
			PointTag:  cfg.RewardTypePoint,
			AmountTag: cfg.RewardTypeAmount,
		},
	}
}

// MapList maps a list answer, either a bare array or {data: [...]}, keeping
// only the records whose status is the to-do value.
func (m *StimMapper) MapList(doc gjson.Result) []models.Promotion {
	list := doc
	if !doc.IsArray() {
		list = doc.Get("data")
	}

	promos := make([]models.Promotion, 0)
	list.ForEach(func(_, record gjson.Result) bool {
		if status := record.Get(m.cfg.StatusField); status.Exists() && status.String() != m.cfg.StatusToDo {
			return true
		}
		promos = append(promos, m.Map(record))
		return true
	})
	return promos
}

// Map converts one record.
func (m *StimMapper) Map(record gjson.Result) models.Promotion {
	p := models.Promotion{
		ID:          first(record, m.cfg.IDField, "id").Int(),
		Code:        first(record, m.cfg.CodeField, "code").String(),
		Title:       m.title(record),
		RewardType:  m.codec.Parse(first(record, m.cfg.RewardTypeField, "reward_type").String()),
		RewardValue: first(record, m.cfg.RewardValueField, "reward_value").Float(),
		PromoType:   first(record, m.cfg.PromoTypeField, "promo_type").String(),
	}
	if p.Code == "" && p.ID != 0 {
		p.Code = strconv.FormatInt(p.ID, 10)
	}
	p.Utilisation = m.utilisation(record)
	return p
}

func (m *StimMapper) title(record gjson.Result) string {
	for _, field := range append(slices.Clip(m.cfg.TitleFields), "title") {
		if field == "" {
			continue
		}
		if t := strings.TrimSpace(record.Get(field).String()); t != "" {
			return t
		}
	}
	return m.cfg.DefaultTitle
}

// utilisation reads the usage counters. A missing remaining count is derived
// from the other two so the counters always add up.
func (m *StimMapper) utilisation(record gjson.Result) *models.Utilisation {
	maximum := first(record, m.cfg.UsageMaximumField, "utilisation.maximum")
	if !maximum.Exists() {
		return nil
	}

	u := &models.Utilisation{
		Effectuees: int(first(record, m.cfg.UsageEffectueesField, "utilisation.effectuees").Int()),
		Maximum:    int(maximum.Int()),
	}
	if left := first(record, m.cfg.UsageRestantesField, "utilisation.restantes"); left.Exists() && int(left.Int())+u.Effectuees == u.Maximum {
		u.Restantes = int(left.Int())
	} else {
		u.Restantes = max(u.Maximum-u.Effectuees, 0)
		u.Effectuees = u.Maximum - u.Restantes
	}
	return u
}

func first(record gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if v := record.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
