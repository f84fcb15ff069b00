package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/live"
)

func TestGetOverview_OverviewShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/u1/overview", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"overview":{"capital":"100","netProfit":"2.50","referralEarnings":"0",
			"deposits":[{"id":"d1","amount":"100","startDate":"2025-03-03T09:00:00Z","status":"active"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", "secret")
	p, err := c.GetOverview(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, live.PayloadOverview, p.Kind)
	require.Len(t, p.Body.Deposits, 1)
	assert.Equal(t, "2.5", p.Body.NetProfit.Decimal.String())
}

func TestGetOverview_UserFallbackShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"user":{"netProfit":4}}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, "").GetOverview(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, live.PayloadUser, p.Kind)
}

func TestGetOverview_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, generic.ErrUserNotFound},
		{"forbidden", http.StatusForbidden, generic.ErrForbidden},
		{"server error", http.StatusBadGateway, generic.ErrSnapshotUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").GetOverview(context.Background(), "u1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "nope", se.Message)
		})
	}
}

func TestGetOverview_TransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").GetOverview(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, generic.IsRetryable(err))
}

func TestGetOverview_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"overview":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GetOverview(context.Background(), "u1")
	assert.Error(t, err)
}
