package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"health-telemetry/internal/config"
	"health-telemetry/internal/control"
	"health-telemetry/internal/handlers"
	"health-telemetry/internal/ingest"
	"health-telemetry/internal/logger"
	"health-telemetry/internal/metrics"
	"health-telemetry/internal/mqttingest"
	"health-telemetry/internal/publish"
	"health-telemetry/internal/sink"
	"health-telemetry/internal/storage"
	"health-telemetry/internal/validation"
)

const serviceName = "health-telemetry"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// the real logger depends on cfg
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Flush(log)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		logger.Flush(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	httpMetrics := metrics.NewHTTP(reg)

	store := storage.NewStore(cfg.Store.Capacity, storage.WithEvictHook(m.EvictionsTotal.Inc))
	validator := validation.NewValidator(validation.DefaultBounds())
	led := control.NewLED(func(on bool) {
		if on {
			m.LEDState.Set(1)
		} else {
			m.LEDState.Set(0)
		}
		log.Info("LED state changed", zap.Bool("state", on))
	})

	dispatcher := sink.NewDispatcher(cfg.Sinks.QueueSize, cfg.Sinks.Timeout, m, log)

	archive, err := storage.OpenArchive(ctx, cfg.Archive.Driver, cfg.Archive.DSN, log)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() {
			if err := archive.Close(); err != nil {
				log.Error("failed to close archive", zap.Error(err))
			}
		}()
		dispatcher.Add("archive_"+cfg.Archive.Driver, sink.Func(archive.Save))
	}

	if cfg.Redis.Enabled {
		client, err := publish.NewRedisClient(ctx, publish.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		dispatcher.Add("redis", publish.NewRedisPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen, log))
		log.Info("publishing entries to redis stream",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("stream", cfg.Redis.Stream),
		)
	}

	var opts []ingest.Option
	if dispatcher.Len() > 0 {
		dispatcher.Start()
		opts = append(opts, ingest.WithSinks(dispatcher))
	}
	svc := ingest.NewService(store, validator, cfg.Store.Window, m, log, opts...)

	var subscriber *mqttingest.Subscriber
	if cfg.MQTT.Enabled {
		client, err := mqttingest.Connect(mqttingest.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log)
		if err != nil {
			return err
		}
		subscriber = mqttingest.NewSubscriber(client, cfg.MQTT.Topic, byte(cfg.MQTT.QoS), svc, log)
		if err := subscriber.Start(); err != nil {
			client.Disconnect(0)
			return err
		}
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(handlers.New(svc, led, log), reg, httpMetrics, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("starting HTTP server",
		zap.String("port", cfg.Server.Port),
		zap.Duration("read_timeout", cfg.Server.ReadTimeout),
		zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		zap.Duration("idle_timeout", cfg.Server.IdleTimeout),
		zap.Int("store_capacity", cfg.Store.Capacity),
		zap.Int("window", cfg.Store.Window),
		zap.Int("sinks", dispatcher.Len()),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Info("shutting down server", zap.String("signal", s.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop producers before draining sinks so nothing is enqueued after Stop.
	if subscriber != nil {
		subscriber.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if dispatcher.Len() > 0 {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Warn("sink queue not drained before shutdown deadline", zap.Error(err))
		}
	}

	log.Info("server shutdown complete", zap.Duration("uptime", time.Since(startedAt)))
	return nil
}

var startedAt = time.Now()

// newRouter registers the API routes behind request-id, recovery and metrics
// middleware, plus the Prometheus scrape endpoint.
func newRouter(h *handlers.Handler, reg *prometheus.Registry, httpMetrics *metrics.HTTP, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	h.Routes(mux, func(name string, next http.Handler) http.Handler {
		return httpMetrics.Instrument(name, handlers.RequestID(log, handlers.Recover(log, next)))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
