package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the server state reported by /status. *multivu.Server
// satisfies it.
type StatusSource interface {
	Addr() net.Addr
	Flavor() string
	IsClientConnected() bool
	ClientAddress() net.Addr
	SessionID() string
}

// Status is the /status response body.
type Status struct {
	Addr      string `json:"addr"`
	Flavor    string `json:"flavor"`
	Connected bool   `json:"connected"`
	Client    string `json:"client,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Handler returns a router serving /metrics from gatherer and /status from
// source.
func Handler(source StatusSource, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := Status{
			Flavor:    source.Flavor(),
			Connected: source.IsClientConnected(),
			SessionID: source.SessionID(),
		}
		if addr := source.Addr(); addr != nil {
			st.Addr = addr.String()
		}
		if client := source.ClientAddress(); client != nil {
			st.Client = client.String()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	return r
}

// Serve runs an HTTP server for h on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "metrics server shutdown")
		}
		return nil
	}
}
