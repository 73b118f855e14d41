package i18n

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

// Translator resolves UI and error messages in the session language.
type Translator struct {
	mu        sync.RWMutex
	cat       *catalog.Builder
	keys      map[language.Tag]map[string]struct{}
	matcher   language.Matcher
	supported []language.Tag
	fallback  language.Tag
	current   language.Tag
}

func NewTranslator(cfg config.LocalizationConfig) (*Translator, error) {
	cat, keys, err := newCatalog()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	fallback, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	supported := make([]language.Tag, 0, len(cfg.SupportedLanguages)+1)
	supported = append(supported, fallback)
	for _, l := range cfg.SupportedLanguages {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("invalid supported language %q: %w", l, err)
		}
		supported = append(supported, tag)
	}

	return &Translator{
		cat:       cat,
		keys:      keys,
		matcher:   language.NewMatcher(supported),
		supported: supported,
		fallback:  fallback,
		current:   fallback,
	}, nil
}

// Use switches to the closest supported language, or the default one when
// nothing matches.
func (t *Translator) Use(lang string) language.Tag {
	tag := t.fallback
	if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
		_, idx, conf := t.matcher.Match(language.Make(lang))
		if conf != language.No {
			tag = t.supported[idx]
		}
	}

	t.mu.Lock()
	t.current = tag
	t.mu.Unlock()
	return tag
}

// OnSession follows the session language. It is registered as a session
// subscriber.
func (t *Translator) OnSession(data models.MboxData) {
	t.Use(data.TwoLetterISOLanguageName)
}

func (t *Translator) Language() language.Tag {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Lookup returns the message for key when the catalog defines it in the
// current language or in English.
func (t *Translator) Lookup(key string) (string, bool) {
	if _, ok := t.catalogTag(key); !ok {
		return "", false
	}
	return t.T(key), true
}

// T formats the message for key. Unknown keys are returned as is.
func (t *Translator) T(key string, args ...any) string {
	tag, _ := t.catalogTag(key)
	return message.NewPrinter(tag, message.Catalog(t.cat)).Sprintf(key, args...)
}

// Number formats v with the grouping rules of the current language.
func (t *Translator) Number(v float64) string {
	return message.NewPrinter(t.Language()).Sprint(number.Decimal(v, number.MaxFractionDigits(0)))
}

func (t *Translator) catalogTag(key string) (language.Tag, bool) {
	current := t.Language()
	base, _ := current.Base()
	for _, tag := range []language.Tag{current, language.Make(base.String())} {
		if set, ok := t.keys[tag]; ok {
			if _, ok := set[key]; ok {
				return tag, true
			}
		}
	}
	if _, ok := t.keys[language.English][key]; ok {
		return language.English, true
	}
	return current, false
}
