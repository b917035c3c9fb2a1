package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Relay directions.
const (
	DiscordToSlack = "discord_to_slack"
	SlackToDiscord = "slack_to_discord"
)

var (
	RelayOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_outcomes_total",
			Help: "Inbound events by relay direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_send_failures_total",
			Help: "Outbound sends that failed",
		},
		[]string{"direction"},
	)

	Approvals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_approvals_total",
			Help: "Gated threads approved by a moderator reaction",
		},
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_dropped_events_total",
			Help: "Events dropped at the dispatch boundary",
		},
		[]string{"platform", "reason"},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
