package predictor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("asset"))
		_, _ = w.Write([]byte(`{"predicted_close":65000.5,"open":64000,"high":65500,"low":63900,"volume":1234.5}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL+"/", time.Second).Predict(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", p.Asset)
	assert.InDelta(t, 65000.5, p.PredictedClose, 1e-9)
	assert.InDelta(t, 1234.5, p.Volume, 1e-9)
}

func TestPredictErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "BTC")
	assert.ErrorContains(t, err, "500")

	_, err = NewClient("", time.Second).Predict(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
