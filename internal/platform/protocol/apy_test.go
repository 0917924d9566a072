package protocol

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAPYShapes(t *testing.T) {
	cases := map[string]float64{
		`7.25`:                    7.25,
		`{"wbtc":{"apy":4.1}}`:    4.1,
		`{"apy":3}`:               3,
		`{"wbtc":{},"apy":2.5}`:   2.5,
		`{"other":1}`:             8.5,
		`"not json-number"`:       8.5,
		`{"wbtc":{"apy":"high"}}`: 8.5,
	}
	for body, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := NewAPYClient(srv.URL, 8.5, discard())
		assert.Equal(t, want, c.APY(context.Background()), body)
		srv.Close()
	}
}

func TestAPYDefaults(t *testing.T) {
	assert.Equal(t, 8.5, NewAPYClient("", 8.5, discard()).APY(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	assert.Equal(t, 8.5, NewAPYClient(srv.URL, 8.5, discard()).APY(context.Background()))
}
