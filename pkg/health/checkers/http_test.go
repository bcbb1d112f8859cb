package checkers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	t.Run("healthy endpoint passes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewHTTPChecker(srv.URL, "upstream")
		assert.Equal(t, "upstream", c.Name())
		assert.NoError(t, c.Check(context.Background()))
	})

	t.Run("4xx still passes", func(t *testing.T) {
		// Auth-gated endpoints answer 401 to an unauthenticated probe; that
		// still proves the service is up.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		assert.NoError(t, NewHTTPChecker(srv.URL, "").Check(context.Background()))
	})

	t.Run("5xx fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := NewHTTPChecker(srv.URL, "upstream").Check(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unhealthy status code")
	})

	t.Run("unreachable endpoint fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		srv.Close()

		assert.Error(t, NewHTTPChecker(srv.URL, "upstream").Check(context.Background()))
	})

	t.Run("name defaults to url", func(t *testing.T) {
		c := NewHTTPChecker("http://example.com/health", "")
		assert.Equal(t, "http://example.com/health", c.Name())
	})
}
