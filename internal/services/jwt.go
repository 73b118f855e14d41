package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrResumeMismatch  = errors.New("resume parameters do not match their signature")
	ErrSigningDisabled = errors.New("no signing secret configured")
)

const (
	resumeIssuer         = "promo-kiosk"
	hostAudience         = "mbox-host"
	resumeAudience       = "kiosk-resume"
	defaultResumeTimeout = 5 * time.Minute
)

// HostClaims identify the MBox host calling the /mbox endpoints.
type HostClaims struct {
	EgmCode string `json:"egmCode"`
	jwt.RegisteredClaims
}

// ResumeClaims bind a redirect URL to the flow that produced it.
type ResumeClaims struct {
	FlowID      string  `json:"flow"`
	Status      string  `json:"status"`
	PromoID     int64   `json:"promoId,omitempty"`
	Code        string  `json:"code,omitempty"`
	RewardType  string  `json:"rewardType,omitempty"`
	RewardValue float64 `json:"rewardValue,omitempty"`
	jwt.RegisteredClaims
}

type JWTService struct {
	hostSecret   []byte
	resumeSecret []byte
	resumeTTL    time.Duration
}

func NewJWTService(cfg *config.Config) *JWTService {
	ttl := cfg.Security.ResumeTokenTTL
	if ttl <= 0 {
		ttl = defaultResumeTimeout
	}
	return &JWTService{
		hostSecret:   []byte(cfg.Security.HostJWTSecret),
		resumeSecret: []byte(cfg.Security.ResumeSigningSecret),
		resumeTTL:    ttl,
	}
}

// HostAuthEnabled reports whether /mbox endpoints require a bearer token.
func (s *JWTService) HostAuthEnabled() bool {
	return len(s.hostSecret) > 0
}

// ResumeSigningEnabled reports whether redirect URLs carry a signature.
func (s *JWTService) ResumeSigningEnabled() bool {
	return len(s.resumeSecret) > 0
}

func (s *JWTService) GenerateHostToken(egmCode string, ttl time.Duration) (string, error) {
	if !s.HostAuthEnabled() {
		return "", ErrSigningDisabled
	}
	now := time.Now()
	claims := HostClaims{
		EgmCode: egmCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   egmCode,
			Audience:  jwt.ClaimStrings{hostAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hostSecret)
}

func (s *JWTService) ValidateHostToken(tokenString string) (*HostClaims, error) {
	var claims HostClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.hostSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(hostAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

// SignResume signs the parameters a redirect URL will carry back.
func (s *JWTService) SignResume(flow *models.PendingFlow, status string) (string, error) {
	if !s.ResumeSigningEnabled() {
		return "", ErrSigningDisabled
	}
	now := time.Now()
	claims := ResumeClaims{
		FlowID: flow.ID,
		Status: status,
		Code:   flow.Code,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    resumeIssuer,
			Audience:  jwt.ClaimStrings{resumeAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resumeTTL)),
		},
	}
	// a voucher redirect carries only the code
	if flow.Code == "" {
		claims.PromoID = flow.PromoID
		claims.RewardType = string(flow.RewardType)
		claims.RewardValue = flow.RewardValue
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.resumeSecret)
}

// VerifyResume checks that intent is exactly what was signed.
func (s *JWTService) VerifyResume(intent models.ResumeIntent) error {
	if !s.ResumeSigningEnabled() {
		return nil
	}
	if intent.Signature == "" {
		return ErrInvalidToken
	}

	var claims ResumeClaims
	_, err := jwt.ParseWithClaims(intent.Signature, &claims, func(token *jwt.Token) (any, error) {
		return s.resumeSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resumeIssuer),
		jwt.WithAudience(resumeAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.FlowID != intent.FlowID ||
		claims.Status != intent.Status ||
		claims.PromoID != intent.PromoID ||
		claims.Code != intent.Code ||
		claims.RewardType != string(intent.RewardType) ||
		claims.RewardValue != intent.RewardValue {
		return ErrResumeMismatch
	}
	return nil
}
