package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultAppName       = "promo-kiosk"
	defaultEnv           = "development"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultRedisURL      = "localhost:6379"
	defaultShutdownDelay = 10 * time.Second
	defaultCodePattern   = `^\w{2}-\w{4}-\w{4}-\w{4}-\w{4}$`
)

// Config captures the kiosk runtime configuration loaded from environment variables.
type Config struct {
	AppName        string `validate:"required"`
	Env            string `validate:"required"`
	Port           string `validate:"required"`
	LogLevel       string
	RedisURL       string `validate:"required"`
	RedisPass      string
	RedisDB        int `validate:"gte=0"`
	KioskPageURL   string `validate:"required,url"`
	ShutdownPeriod time.Duration

	API          APIConfig
	Mapping      MappingConfig
	Animations   AnimationConfig
	Localization LocalizationConfig
	Validation   ValidationConfig
	Timeouts     TimeoutConfig
	Promo        PromoConfig
	Player       PlayerConfig
	Mbox         MboxConfig
	Errors       ErrorConfig
	Features     FeatureConfig
	Security     SecurityConfig
}

// APIConfig locates the promotion backend.
type APIConfig struct {
	BaseURL          string `validate:"required,url"`
	PlayerStatusPath string `validate:"required"`
	PlayerPromosPath string `validate:"required"`
	UsePromoPath     string `validate:"required"`
	ValidatePath     string `validate:"required"`
	RequestTimeout   time.Duration `validate:"gt=0"`
	MaxRetries       int           `validate:"gte=0"`
	StatusCacheSize  int           `validate:"gt=0"`
	StatusCacheTTL   time.Duration
}

// MappingConfig describes how raw stim records map onto promotions.
// Field values are gjson paths.
type MappingConfig struct {
	StatusField          string `validate:"required"`
	StatusToDo           string `validate:"required"`
	RewardTypePoint      string `validate:"required"`
	RewardTypeAmount     string `validate:"required"`
	DefaultTitle         string
	IDField              string   `validate:"required"`
	CodeField            string   `validate:"required"`
	TitleFields          []string `validate:"min=1"`
	RewardTypeField      string   `validate:"required"`
	RewardValueField     string   `validate:"required"`
	PromoTypeField       string
	UsageEffectueesField string
	UsageMaximumField    string
	UsageRestantesField  string
}

type AnimationConfig struct {
	ItemDelay       time.Duration
	ReturnItemDelay time.Duration
	FinalDelay      time.Duration
	ViewTransition  time.Duration
	MaxCascadeItems int `validate:"gte=0"`
	ClickFeedback   time.Duration
}

type LocalizationConfig struct {
	SupportedLanguages    []string `validate:"min=1"`
	DefaultLanguage       string   `validate:"required"`
	DefaultCurrencySymbol string
}

type ValidationConfig struct {
	CodePattern string `validate:"required"`
	// ClearOnCodes overrides the built-in set of codes that clear the PIN pad.
	ClearOnCodes []string
}

type TimeoutConfig struct {
	PinAuthentication time.Duration `validate:"gt=0"`
}

type PromoConfig struct {
	HideUsageIfMaxOne bool
	SimulatedBalance  float64
}

type PlayerConfig struct {
	AnonymousIDs []string
}

// MboxConfig holds the host contract: redirect parameter names, status values
// and the session used until the host sends its own.
type MboxConfig struct {
	AppName          string `validate:"required"`
	StatusParam      string `validate:"required"`
	PromoIDParam     string `validate:"required"`
	CodeParam        string `validate:"required"`
	RewardTypeParam  string `validate:"required"`
	RewardValueParam string `validate:"required"`
	FlowParam        string `validate:"required"`
	SignatureParam   string `validate:"required"`
	SuccessValue     string `validate:"required"`
	FailureValue     string `validate:"required"`
	ErrorValue       string `validate:"required"`

	InitialOwnerID  string
	InitialEgmCode  string
	InitialCasinoID string
	InitialLanguage string
	InitialCurrency string
}

type ErrorConfig struct {
	HTTPStatusCodes map[int]string
}

type FeatureConfig struct {
	ManualCodeInput     bool
	ShowUtilisationInfo bool
}

type SecurityConfig struct {
	HostJWTSecret        string
	ResumeSigningSecret  string
	ResumeTokenTTL       time.Duration
	PinAttemptsPerMinute int `validate:"gte=0"`
}

// Load reads configuration values from the environment and validates them.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		AppName:      getEnv("APP_NAME", defaultAppName),
		Env:          getEnv("APP_ENV", defaultEnv),
		Port:         getEnv("PORT", defaultPort),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		RedisURL:     getEnv("REDIS_URL", defaultRedisURL),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		KioskPageURL: getEnv("KIOSK_PAGE_URL", "http://localhost:8080/kiosk"),
		API: APIConfig{
			BaseURL:          strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000"), "/"),
			PlayerStatusPath: getEnv("API_PLAYER_STATUS_PATH", "/player/%s/status"),
			PlayerPromosPath: getEnv("API_PLAYER_PROMOS_PATH", "/crm/selligent/personne/%s/stim"),
			UsePromoPath:     getEnv("API_USE_PROMO_PATH", "/stim/%d/use"),
			ValidatePath:     getEnv("API_VALIDATE_PATH", "/stim/validate"),
		},
		Mapping: MappingConfig{
			StatusField:          getEnv("MAPPING_STATUS_FIELD", "statut"),
			StatusToDo:           getEnv("MAPPING_STATUS_TODO", "to-do"),
			RewardTypePoint:      getEnv("MAPPING_REWARD_TYPE_POINT", "Point"),
			RewardTypeAmount:     getEnv("MAPPING_REWARD_TYPE_AMOUNT", "Montant"),
			DefaultTitle:         getEnv("MAPPING_DEFAULT_TITLE", "Promotion"),
			IDField:              getEnv("MAPPING_ID_FIELD", "id"),
			CodeField:            getEnv("MAPPING_CODE_FIELD", "code"),
			TitleFields:          getEnvList("MAPPING_TITLE_FIELDS", []string{"libelle", "titre"}),
			RewardTypeField:      getEnv("MAPPING_REWARD_TYPE_FIELD", "type_gain"),
			RewardValueField:     getEnv("MAPPING_REWARD_VALUE_FIELD", "valeur_gain"),
			PromoTypeField:       getEnv("MAPPING_PROMO_TYPE_FIELD", "type_stim"),
			UsageEffectueesField: getEnv("MAPPING_USAGE_DONE_FIELD", "utilisation.effectuees"),
			UsageMaximumField:    getEnv("MAPPING_USAGE_MAX_FIELD", "utilisation.maximum"),
			UsageRestantesField:  getEnv("MAPPING_USAGE_LEFT_FIELD", "utilisation.restantes"),
		},
		Localization: LocalizationConfig{
			SupportedLanguages:    getEnvList("SUPPORTED_LANGUAGES", []string{"fr", "en", "bg", "de", "es", "it", "ja", "ko", "ru", "zh"}),
			DefaultLanguage:       getEnv("DEFAULT_LANGUAGE", "en"),
			DefaultCurrencySymbol: getEnv("DEFAULT_CURRENCY_SYMBOL", "€"),
		},
		Validation: ValidationConfig{
			CodePattern:  getEnv("PROMO_CODE_PATTERN", defaultCodePattern),
			ClearOnCodes: getEnvList("PIN_CLEAR_ON_CODES", nil),
		},
		Player: PlayerConfig{
			AnonymousIDs: getEnvList("ANONYMOUS_PLAYER_IDS", []string{"", "0"}),
		},
		Mbox: MboxConfig{
			AppName:          getEnv("MBOX_APP_NAME", "JOA MyPromo"),
			StatusParam:      getEnv("MBOX_STATUS_PARAM", "status"),
			PromoIDParam:     getEnv("MBOX_PROMO_ID_PARAM", "promoId"),
			CodeParam:        getEnv("MBOX_CODE_PARAM", "code"),
			RewardTypeParam:  getEnv("MBOX_REWARD_TYPE_PARAM", "rewardType"),
			RewardValueParam: getEnv("MBOX_REWARD_VALUE_PARAM", "rewardValue"),
			FlowParam:        getEnv("MBOX_FLOW_PARAM", "flow"),
			SignatureParam:   getEnv("MBOX_SIGNATURE_PARAM", "sig"),
			SuccessValue:     getEnv("MBOX_SUCCESS_VALUE", "success"),
			FailureValue:     getEnv("MBOX_FAILURE_VALUE", "failure"),
			ErrorValue:       getEnv("MBOX_ERROR_VALUE", "error"),
			InitialOwnerID:   getEnv("MBOX_INITIAL_OWNER_ID", "0"),
			InitialEgmCode:   os.Getenv("MBOX_INITIAL_EGM_CODE"),
			InitialCasinoID:  os.Getenv("MBOX_INITIAL_CASINO_ID"),
			InitialLanguage:  getEnv("MBOX_INITIAL_LANGUAGE", "fr"),
			InitialCurrency:  getEnv("MBOX_INITIAL_CURRENCY", "€"),
		},
		Security: SecurityConfig{
			HostJWTSecret:       os.Getenv("HOST_JWT_SECRET"),
			ResumeSigningSecret: os.Getenv("RESUME_SIGNING_SECRET"),
		},
	}

	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownPeriod, err = getEnvDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return nil, err
	}
	if cfg.API.RequestTimeout, err = getEnvDuration("API_REQUEST_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.API.MaxRetries, err = getEnvInt("API_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.API.StatusCacheSize, err = getEnvInt("API_STATUS_CACHE_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.API.StatusCacheTTL, err = getEnvDuration("API_STATUS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if err = loadAnimations(&cfg.Animations); err != nil {
		return nil, err
	}
	if cfg.Timeouts.PinAuthentication, err = getEnvDuration("PIN_AUTH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Promo.HideUsageIfMaxOne, err = getEnvBool("PROMO_HIDE_USAGE_IF_MAX_ONE", true); err != nil {
		return nil, err
	}
	if cfg.Promo.SimulatedBalance, err = getEnvFloat("PROMO_SIMULATED_BALANCE", 1000); err != nil {
		return nil, err
	}
	if cfg.Features.ManualCodeInput, err = getEnvBool("FEATURE_MANUAL_CODE_INPUT", true); err != nil {
		return nil, err
	}
	if cfg.Features.ShowUtilisationInfo, err = getEnvBool("FEATURE_SHOW_UTILISATION_INFO", true); err != nil {
		return nil, err
	}
	if cfg.Security.ResumeTokenTTL, err = getEnvDuration("RESUME_TOKEN_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Security.PinAttemptsPerMinute, err = getEnvInt("PIN_ATTEMPTS_PER_MINUTE", 5); err != nil {
		return nil, err
	}
	if cfg.Errors.HTTPStatusCodes, err = parseStatusCodes(getEnv("HTTP_STATUS_ERROR_CODES", "0:API_COMMUNICATION_ERROR")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints plus the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.IsProduction() && c.Security.HostJWTSecret == "" {
		return fmt.Errorf("HOST_JWT_SECRET must be set when APP_ENV=%s", c.Env)
	}
	return nil
}

// IsProduction reports whether the kiosk runs in a production environment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func loadAnimations(a *AnimationConfig) error {
	var err error
	if a.ItemDelay, err = getEnvDuration("ANIM_ITEM_DELAY", 50*time.Millisecond); err != nil {
		return err
	}
	if a.ReturnItemDelay, err = getEnvDuration("ANIM_RETURN_ITEM_DELAY", 10*time.Millisecond); err != nil {
		return err
	}
	if a.FinalDelay, err = getEnvDuration("ANIM_FINAL_DELAY", 400*time.Millisecond); err != nil {
		return err
	}
	if a.ViewTransition, err = getEnvDuration("ANIM_VIEW_TRANSITION", 350*time.Millisecond); err != nil {
		return err
	}
	if a.MaxCascadeItems, err = getEnvInt("ANIM_MAX_CASCADE_ITEMS", 5); err != nil {
		return err
	}
	if a.ClickFeedback, err = getEnvDuration("ANIM_CLICK_FEEDBACK", 700*time.Millisecond); err != nil {
		return err
	}
	return nil
}

// parseStatusCodes reads "status:CODE" pairs separated by commas.
func parseStatusCodes(raw string) (map[int]string, error) {
	out := make(map[int]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		status, code, ok := strings.Cut(pair, ":")
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid HTTP_STATUS_ERROR_CODES entry %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(status))
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_STATUS_ERROR_CODES status %q: %w", status, err)
		}
		out[n] = strings.TrimSpace(code)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvList splits a comma separated variable. Empty elements are kept,
// which is how the empty anonymous id is expressed (",0").
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getEnvDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
