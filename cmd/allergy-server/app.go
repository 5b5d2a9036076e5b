package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ehr/allergy/internal/config"
	"github.com/ehr/allergy/internal/domain/allergy"
	"github.com/ehr/allergy/internal/platform/events"
	"github.com/ehr/allergy/internal/platform/kv"
	"github.com/ehr/allergy/internal/platform/metrics"
)

// app holds the wired dependencies shared by the server and CLI commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   kv.Store
	sink    events.Sink
	metrics *metrics.Metrics
	svc     *allergy.Service

	closers []io.Closer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, authz allergy.Authorizer) (*app, error) {
	store, err := kv.Open(ctx, kv.Options{
		Driver:      cfg.StoreDriver,
		Path:        cfg.StorePath,
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, closers: []io.Closer{store}}

	sink, closer, err := openSink(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.sink = sink

	policy := allergy.ActiveOnRecord
	if cfg.UnverifiedAsSuspected {
		policy = allergy.SuspectedUnlessVerified
	}
	a.metrics = metrics.New()
	a.svc = allergy.NewService(store, authz, allergy.Options{
		Logger:       logger,
		Metrics:      a.metrics,
		Events:       sink,
		StatusPolicy: policy,
	})
	return a, nil
}

// openSink returns the event sink named by EVENT_SINK and, when the sink
// holds a connection, its closer.
func openSink(cfg *config.Config, logger zerolog.Logger) (events.Sink, io.Closer, error) {
	switch cfg.EventSink {
	case config.SinkNone:
		return events.Discard{}, nil, nil
	case config.SinkAMQP:
		conn, err := events.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		sink, err := events.NewAMQPSink(conn, cfg.EventQueue)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return sink, sink, nil
	case config.SinkWebhook:
		sink, err := events.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret)
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	case config.SinkLog, "":
		return events.NewLogSink(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}

// Close releases the sink and store in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
