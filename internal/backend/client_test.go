package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/logging"
	"promo-kiosk-backend/internal/models"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:          baseURL,
			PlayerStatusPath: "/player/%s/status",
			PlayerPromosPath: "/crm/selligent/personne/%s/stim",
			UsePromoPath:     "/stim/%d/use",
			ValidatePath:     "/stim/validate",
			RequestTimeout:   2 * time.Second,
			MaxRetries:       2,
			StatusCacheSize:  8,
			StatusCacheTTL:   time.Minute,
		},
		Mapping: config.MappingConfig{
			StatusField:          "statut",
			StatusToDo:           "to-do",
			RewardTypePoint:      "Point",
			RewardTypeAmount:     "Montant",
			DefaultTitle:         "Promotion",
			IDField:              "id",
			CodeField:            "code",
			TitleFields:          []string{"libelle", "titre"},
			RewardTypeField:      "type_gain",
			RewardValueField:     "valeur_gain",
			PromoTypeField:       "type_stim",
			UsageEffectueesField: "utilisation.effectuees",
			UsageMaximumField:    "utilisation.maximum",
			UsageRestantesField:  "utilisation.restantes",
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(testConfig(srv.URL), logging.Discard())
}

func TestGetPlayerPromosMapsAndFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/selligent/personne/1234/stim", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"id":7,"libelle":"Welcome","type_gain":"Point","valeur_gain":150,"type_stim":"bonus","statut":"to-do",
			 "utilisation":{"effectuees":1,"maximum":3,"restantes":2}},
			{"id":8,"titre":"Done","type_gain":"Montant","valeur_gain":10,"statut":"done"},
			{"id":9,"type_gain":"Montant","valeur_gain":20,"statut":"to-do","utilisation":{"effectuees":1,"maximum":3,"restantes":5}}
		]}`))
	})

	promos, err := client.GetPlayerPromos(context.Background(), "1234")
	require.NoError(t, err)
	require.Len(t, promos, 2)

	assert.Equal(t, int64(7), promos[0].ID)
	assert.Equal(t, "7", promos[0].Code)
	assert.Equal(t, "Welcome", promos[0].Title)
	assert.Equal(t, models.RewardPoints, promos[0].RewardType)
	assert.Equal(t, 150.0, promos[0].RewardValue)
	assert.Equal(t, &models.Utilisation{Effectuees: 1, Maximum: 3, Restantes: 2}, promos[0].Utilisation)

	assert.Equal(t, "Promotion", promos[1].Title, "default title")
	assert.Equal(t, models.RewardAmount, promos[1].RewardType)
	u := promos[1].Utilisation
	assert.Equal(t, u.Maximum, u.Effectuees+u.Restantes, "counters are made consistent")
}

func TestGetPlayerPromosAcceptsBareArray(t *testing.T) {
	m := NewStimMapper(testConfig("").Mapping)
	promos := m.MapList(gjson.Parse(`[{"id":1,"statut":"to-do"},{"id":2}]`))
	assert.Len(t, promos, 2)
}

func TestCheckPlayerStatusIsCached(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(models.PlayerStatus{IsCustomer: true})
	})

	for i := 0; i < 3; i++ {
		status, err := client.CheckPlayerStatus(context.Background(), "1234")
		require.NoError(t, err)
		assert.True(t, status.IsCustomer)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(models.PlayerStatus{IsCustomer: true})
	})

	status, err := client.CheckPlayerStatus(context.Background(), "1234")
	require.NoError(t, err)
	assert.True(t, status.IsCustomer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUsePromoIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":"JOAPI_STIM_0005","message":"closed"}}`))
	})

	_, err := client.UsePromo(context.Background(), 42)
	var httpErr *models.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
	assert.Contains(t, string(httpErr.Body), "JOAPI_STIM_0005")
	assert.Equal(t, int32(1), calls.Load())
}

func TestValidateCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AB-1234-5678-9012-3456", body["code"])
		assert.Equal(t, "1234", body["playerId"])
		w.Write([]byte(`{"valid":true,"message":"ok","promo":{"id":42,"title":"Bonus","reward_type":"Point","reward_value":100}}`))
	})

	res, err := client.ValidateCode(context.Background(), "AB-1234-5678-9012-3456", "1234")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Promo)
	assert.Equal(t, int64(42), res.Promo.ID)
	assert.Equal(t, "Bonus", res.Promo.Title)
	assert.Equal(t, models.RewardPoints, res.Promo.RewardType)
}

func TestUnreachableBackendIsStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := testConfig(srv.URL)
	cfg.API.MaxRetries = 0
	client := NewClient(cfg, logging.Discard())

	_, err := client.UsePromo(context.Background(), 1)
	var httpErr *models.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 0, httpErr.Status)
}
