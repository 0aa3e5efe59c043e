package main

import (
	"context"
	"fmt"
	"log/slog"

	kafkaadapter "github.com/couchcryptid/incident-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/mapbox"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/news"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/social"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/sqlite"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/weather"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/ws"
	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/couchcryptid/incident-ingest-service/internal/pipeline"
)

// app holds the wired components shared by the serve and run commands.
type app struct {
	store   *sqlite.Store
	trigger *pipeline.Trigger
	hub     *ws.Hub
	writer  *kafkaadapter.Writer
	logger  *slog.Logger
}

// buildApp opens the store and wires every adapter into a trigger. hub may
// be nil, in which case no WebSocket sink is attached.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, hub *ws.Hub) (*app, error) {
	store, err := sqlite.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	a := &app{store: store, hub: hub, logger: logger}

	opts := []pipeline.Option{pipeline.WithRecorder(store)}

	if g := buildGeocoder(cfg, logger, metrics); g != nil {
		opts = append(opts, pipeline.WithGeocoder(g))
	}

	var sinks []pipeline.Sink
	if hub != nil {
		sinks = append(sinks, pipeline.Sink{Name: "websocket", Publisher: hub})
	}
	if cfg.KafkaEnabled {
		a.writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Publisher: a.writer})
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	if len(sinks) > 0 {
		opts = append(opts, pipeline.WithPublisher(pipeline.NewFanout(logger, metrics, sinks...)))
	}

	p := pipeline.New(store, logger, metrics, opts...)
	a.trigger = pipeline.NewTrigger(p)

	if err := registerSources(a.trigger, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildGeocoder(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) domain.Geocoder {
	if !cfg.MapboxEnabled {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("mapbox geocoding disabled")
		return nil
	}
	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
	cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	if err != nil {
		logger.Warn("mapbox cache unavailable, geocoding uncached", "error", err)
		metrics.GeocodeEnabled.Set(1)
		return client
	}
	metrics.GeocodeEnabled.Set(1)
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	return cached
}

func registerSources(t *pipeline.Trigger, cfg *config.Config, logger *slog.Logger) error {
	catalog, err := config.LoadNewsSources(cfg.NewsSourcesFile)
	if err != nil {
		return err
	}
	agg, err := news.FromConfig(catalog, cfg.RequestTimeout, logger)
	if err != nil {
		return fmt.Errorf("news sources: %w", err)
	}
	t.Register(domain.SourceNews, pipeline.Registration{
		Build: func(pipeline.Params) domain.Fetcher { return agg },
	})

	wc := weather.NewClient(cfg.OpenWeatherAPIKey, cfg.RequestTimeout, logger)
	t.Register(domain.SourceWeather, pipeline.Registration{
		Build: func(p pipeline.Params) domain.Fetcher {
			city := p["city"]
			if city == "" {
				city = cfg.WeatherCity
			}
			return wc.Fetcher(city)
		},
		Category: "weather",
	})

	sc := social.NewClient(cfg.SocialBearerToken, cfg.SocialRatePerMinute, cfg.RequestTimeout, logger)
	t.Register(domain.SourceSocial, pipeline.Registration{
		Build: func(pipeline.Params) domain.Fetcher { return sc },
	})
	return nil
}

// Close releases the store and flushes the Kafka writer.
func (a *app) Close() {
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}
