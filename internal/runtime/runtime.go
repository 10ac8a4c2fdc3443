package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/bus"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/dictation"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/natsserver"
	"github.com/loqalabs/loqa-dictate/internal/stt"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

type component interface {
	Healthy() bool
}

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	components map[string]component
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		components: make(map[string]component),
	}
}

// Start brings up telemetry, the bus, the event store and the services, then
// serves health endpoints until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) (err error) {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTelemetry(shutdownCtx); terr != nil {
			r.logger.Error("telemetry shutdown error", slogError(terr))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "natsserver")))
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	defer busClient.Close()
	r.components["bus"] = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close event store: %w", cerr))
		}
	}()

	if r.cfg.STT.Enabled {
		recognizer, rerr := stt.NewRecognizer(r.cfg.STT)
		if rerr != nil {
			return fmt.Errorf("create recognizer: %w", rerr)
		}
		sttService := stt.NewService(ctx, r.cfg.STT, busClient, recognizer)
		if err := sttService.Start(); err != nil {
			return fmt.Errorf("start stt: %w", err)
		}
		defer sttService.Close()
		r.components["stt"] = sttService
	}

	if r.cfg.Dictation.Enabled {
		sink, serr := dictation.NewSink(r.cfg.Dictation, busClient)
		if serr != nil {
			return fmt.Errorf("create dictation sink: %w", serr)
		}
		metrics, merr := dictation.NewMetrics(otel.GetMeterProvider())
		if merr != nil {
			return fmt.Errorf("create dictation metrics: %w", merr)
		}
		dictationService := dictation.NewService(ctx, r.cfg.Dictation, busClient, sink, store, metrics)
		if err := dictationService.Start(); err != nil {
			return fmt.Errorf("start dictation: %w", err)
		}
		defer dictationService.Close()
		r.components["dictation"] = dictationService
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	if bind := r.cfg.Telemetry.PrometheusBind; metricsHandler != nil && bind != "" && bind != addr {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		metricsServer := &http.Server{Addr: bind, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	return g.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		if name, ok := r.unhealthy(); ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(name + " not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) unhealthy() (string, bool) {
	for name, c := range r.components {
		if !c.Healthy() {
			return name, true
		}
	}
	return "", false
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
