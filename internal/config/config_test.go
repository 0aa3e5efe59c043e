package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/incidents.db", cfg.DatabasePath)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Duration(0), cfg.IngestInterval)
	assert.Equal(t, []string{"news", "weather"}, cfg.IngestSources)
	assert.Equal(t, "Chennai", cfg.WeatherCity)
	assert.Empty(t, cfg.OpenWeatherAPIKey)
	assert.Equal(t, 30, cfg.SocialRatePerMinute)
	assert.Empty(t, cfg.NewsSourcesFile)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "incident-updates", cfg.KafkaTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATABASE_PATH", "/var/lib/incidents/db.sqlite")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("INGEST_INTERVAL", "15m")
	t.Setenv("INGEST_SOURCES", "news, social ,")
	t.Setenv("WEATHER_CITY", "Madurai")
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")
	t.Setenv("SOCIAL_BEARER_TOKEN", "bearer")
	t.Setenv("SOCIAL_RATE_PER_MINUTE", "10")
	t.Setenv("NEWS_SOURCES_FILE", "/etc/incidents/sources.yaml")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "alerts")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/lib/incidents/db.sqlite", cfg.DatabasePath)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.IngestInterval)
	assert.Equal(t, []string{"news", "social"}, cfg.IngestSources)
	assert.Equal(t, "Madurai", cfg.WeatherCity)
	assert.Equal(t, "ow-key", cfg.OpenWeatherAPIKey)
	assert.Equal(t, "bearer", cfg.SocialBearerToken)
	assert.Equal(t, 10, cfg.SocialRatePerMinute)
	assert.Equal(t, "/etc/incidents/sources.yaml", cfg.NewsSourcesFile)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidRequestTimeout(t *testing.T) {
	for _, v := range []string{"bad", "0s", "-2s"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("REQUEST_TIMEOUT", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
		})
	}
}

func TestLoad_InvalidIngestInterval(t *testing.T) {
	t.Setenv("INGEST_INTERVAL", "-5m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_INTERVAL")
}

func TestLoad_IntervalWithoutSources(t *testing.T) {
	t.Setenv("INGEST_INTERVAL", "5m")
	t.Setenv("INGEST_SOURCES", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_SOURCES")
}

func TestLoad_InvalidSocialRate(t *testing.T) {
	t.Setenv("SOCIAL_RATE_PER_MINUTE", "zero")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOCIAL_RATE_PER_MINUTE")
}

func TestLoad_InvalidMapboxTimeout(t *testing.T) {
	t.Setenv("MAPBOX_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TIMEOUT")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}
