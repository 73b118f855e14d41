package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/metrics"
	"promo-kiosk-backend/internal/models"
)

const maxBodySize = 1 << 20

// Client talks to the promotion REST API.
type Client struct {
	baseURL    string
	api        config.APIConfig
	mapper     *StimMapper
	httpClient *http.Client
	statuses   *expirable.LRU[string, models.PlayerStatus]
	logger     *slog.Logger
}

func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.API.BaseURL,
		api:     cfg.API,
		mapper:  NewStimMapper(cfg.Mapping),
		httpClient: &http.Client{
			Timeout: cfg.API.RequestTimeout,
		},
		statuses: expirable.NewLRU[string, models.PlayerStatus](cfg.API.StatusCacheSize, nil, cfg.API.StatusCacheTTL),
		logger:   logger,
	}
}

// CheckPlayerStatus returns whether playerID is a customer. Answers are
// cached briefly since every list reload starts with this call.
func (c *Client) CheckPlayerStatus(ctx context.Context, playerID string) (models.PlayerStatus, error) {
	if status, ok := c.statuses.Get(playerID); ok {
		metrics.StatusCacheLookups.WithLabelValues(metrics.ResultHit).Inc()
		return status, nil
	}
	metrics.StatusCacheLookups.WithLabelValues(metrics.ResultMiss).Inc()

	body, err := c.do(ctx, "player_status", http.MethodGet, fmt.Sprintf(c.api.PlayerStatusPath, url.PathEscape(playerID)), nil)
	if err != nil {
		return models.PlayerStatus{}, err
	}

	var status models.PlayerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return models.PlayerStatus{}, &models.HTTPError{Status: http.StatusOK, Body: body, Message: "invalid player status: " + err.Error()}
	}

	c.statuses.Add(playerID, status)
	return status, nil
}

// GetPlayerPromos lists the promotions of playerID that are still to do.
func (c *Client) GetPlayerPromos(ctx context.Context, playerID string) ([]models.Promotion, error) {
	body, err := c.do(ctx, "player_promos", http.MethodGet, fmt.Sprintf(c.api.PlayerPromosPath, url.PathEscape(playerID)), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &models.HTTPError{Status: http.StatusOK, Body: body, Message: "invalid promotion list"}
	}

	return c.mapper.MapList(gjson.ParseBytes(body)), nil
}

// ValidateCode checks a voucher for playerID.
func (c *Client) ValidateCode(ctx context.Context, code, playerID string) (models.CodeValidation, error) {
	payload := map[string]string{"code": code, "playerId": playerID}

	body, err := c.do(ctx, "validate_code", http.MethodPost, c.api.ValidatePath, payload)
	if err != nil {
		return models.CodeValidation{}, err
	}
	if !gjson.ValidBytes(body) {
		return models.CodeValidation{}, &models.HTTPError{Status: http.StatusOK, Body: body, Message: "invalid validation response"}
	}

	doc := gjson.ParseBytes(body)
	result := models.CodeValidation{
		Valid:   doc.Get("valid").Bool(),
		Message: doc.Get("message").String(),
	}
	if promo := doc.Get("promo"); promo.IsObject() {
		p := c.mapper.Map(promo)
		result.Promo = &p
	}
	return result, nil
}

// UsePromo redeems promoID.
func (c *Client) UsePromo(ctx context.Context, promoID int64) (models.UseResponse, error) {
	body, err := c.do(ctx, "use_promo", http.MethodPut, fmt.Sprintf(c.api.UsePromoPath, promoID), struct{}{})
	if err != nil {
		return models.UseResponse{}, err
	}

	return models.UseResponse{Message: gjson.GetBytes(body, "message").String()}, nil
}

// do performs a request and returns the body of a 2xx response. Failures are
// *models.HTTPError; status 0 means no response arrived. Only GETs are
// retried, and only on transport errors and 5xx answers.
func (c *Client) do(ctx context.Context, operation, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		if reqBody, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.send(ctx, operation, method, path, reqBody)
		if err == nil {
			body = b
			return nil
		}

		var httpErr *models.HTTPError
		retryable := method == http.MethodGet && errors.As(err, &httpErr) && (httpErr.Status == 0 || httpErr.Status >= 500)
		if !retryable || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.logger.Warn("backend request failed, retrying", "operation", operation, "attempt", attempt, "error", err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	retries := backoff.WithMaxRetries(policy, uint64(max(c.api.MaxRetries, 0)))

	if err := backoff.Retry(op, backoff.WithContext(retries, ctx)); err != nil {
		var httpErr *models.HTTPError
		if errors.As(err, &httpErr) {
			return nil, err
		}
		return nil, &models.HTTPError{Status: 0, Message: err.Error()}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, operation, method, path string, reqBody []byte) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &models.HTTPError{Status: 0, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.BackendDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(operation, "0").Inc()
		return nil, &models.HTTPError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &models.HTTPError{Status: 0, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.HTTPError{Status: resp.StatusCode, Body: body, Message: resp.Status}
	}
	return body, nil
}
