package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mindtrack/apiserver/config"
	"github.com/mindtrack/apiserver/internal/db"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/internal/services"
	"github.com/mindtrack/apiserver/internal/storage"
	"github.com/mindtrack/apiserver/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrExportsDisabled is returned by New when storage or messaging is not
// configured.
var ErrExportsDisabled = errors.New("worker needs STORAGE_BACKEND and MQ_BACKEND")

// Consumer is a message loop run by the worker.
type Consumer interface {
	Channel() string
	Run(ctx context.Context) error
}

// Worker renders mood history exports and tracks mood activity from the
// queue.
type Worker struct {
	consumers     []Consumer
	metricsServer *http.Server
	db            *sql.DB
	queue         *mq.MQ
	logger        *slog.Logger
}

// New connects to the database, queue and object storage.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}
	if queue == nil {
		return nil, ErrExportsDisabled
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = queue.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if objects == nil {
		_ = queue.Close()
		return nil, ErrExportsDisabled
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		_ = queue.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := newMetrics()
	moods := services.NewMoodService(store.NewMoodRepository(dbConn), nil, loc, logger)
	exports := services.NewExportService(moods, objects, queue, logger)
	activity := services.NewActivityService(queue, m, logger)

	w := NewWithConsumers(logger, exports, activity)
	w.db = dbConn
	w.queue = queue
	if cfg.WorkerMetricsPort > 0 {
		router := chi.NewRouter()
		router.Handle("/metrics", m.handler())
		w.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return w, nil
}

// NewWithConsumers builds a Worker around existing consumers.
func NewWithConsumers(logger *slog.Logger, consumers ...Consumer) *Worker {
	return &Worker{consumers: consumers, logger: logger}
}

// Run consumes every channel until ctx is cancelled. The first consumer to
// fail stops the others.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range w.consumers {
		g.Go(func() error {
			w.logger.InfoContext(ctx, "worker consuming", "channel", consumer.Channel())
			err := consumer.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume %s: %w", consumer.Channel(), err)
			}
			return nil
		})
	}
	if w.metricsServer != nil {
		g.Go(func() error {
			w.logger.InfoContext(ctx, "worker metrics listening", "addr", w.metricsServer.Addr)
			if err := w.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return w.metricsServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	w.logger.InfoContext(ctx, "worker stopped")
	return err
}

// Close releases the queue and database connections.
func (w *Worker) Close() error {
	var errs []error
	if w.queue != nil {
		errs = append(errs, w.queue.Close())
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
	}
	return errors.Join(errs...)
}
