package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/verif-infra/sim-acceptor/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config holds the addresses the status and metrics servers bind to.
// An empty address disables that server.
type Config struct {
	HealthzAddr string // host:port, e.g. 0.0.0.0:8080
	MetricsAddr string // host:port, e.g. 0.0.0.0:7300
	Runs        *RunStore
}

type Service struct {
	config  Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	s := &Service{
		config:  cfg,
		Healthz: &HealthzServer{runs: cfg.Runs},
		Metrics: &MetricsServer{},
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	if s.config.HealthzAddr != "" {
		go func() {
			addr := s.config.HealthzAddr
			log.Info("starting healthz server", "addr", addr)
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.config.MetricsAddr != "" {
		go func() {
			addr := s.config.MetricsAddr
			log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	log.Info("service started")
}

func (s *Service) Shutdown() {
	log.Info("service shutting down")

	if s.config.HealthzAddr != "" {
		_ = s.Healthz.Shutdown()
		log.Info("healthz stopped")
	}

	if s.config.MetricsAddr != "" {
		_ = s.Metrics.Shutdown()
		log.Info("metrics stopped")
	}

	log.Info("service stopped")
}
