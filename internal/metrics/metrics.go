package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// EvaluationsTotal counts access evaluation sweeps
	EvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_evaluations_total",
		Help: "Total number of access evaluation sweeps",
	})

	// EvaluationErrors counts evaluation sweeps that panicked or failed
	EvaluationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_evaluation_errors_total",
		Help: "Total number of failed access evaluation sweeps",
	})

	// RestrictionChanges counts device restriction changes by restriction
	RestrictionChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_restriction_changes_total",
		Help: "Total number of device restriction changes",
	}, []string{"restriction"})

	// BlockedDevices tracks the number of currently blocked devices
	BlockedDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warden_blocked_devices",
		Help: "Number of devices currently denied internet access",
	})

	// AccountedMinutes tracks accounted usage per user for today
	AccountedMinutes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_usage_accounted_minutes",
		Help: "Accounted usage minutes for the current day per user",
	}, []string{"user"})

	// IdleAutoStops counts sessions closed by the idle timeout
	IdleAutoStops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_idle_auto_stops_total",
		Help: "Total number of usage sessions closed due to device inactivity",
	})

	// BonusMinutesGranted counts bonus time handed out
	BonusMinutesGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_bonus_minutes_granted_total",
		Help: "Total bonus usage minutes granted",
	})
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal,
		EvaluationErrors,
		RestrictionChanges,
		BlockedDevices,
		AccountedMinutes,
		IdleAutoStops,
		BonusMinutesGranted,
	)
}

// Server serves the Prometheus metrics endpoint
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a metrics server bound to addr
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener installs a pre-bound listener (systemd socket activation)
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start begins serving metrics. It blocks until the server stops.
func (s *Server) Start() error {
	if s.listener != nil {
		s.logger.Info().Str("address", s.listener.Addr().String()).Msg("Starting metrics server on inherited socket")
		err := s.server.Serve(s.listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}

	s.logger.Info().Str("address", s.server.Addr).Msg("Starting metrics server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down metrics server")
	return s.server.Shutdown(ctx)
}
