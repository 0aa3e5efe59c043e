//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	kafkaadapter "github.com/couchcryptid/incident-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/sqlite"
	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/couchcryptid/incident-ingest-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "incident-updates-test"

// TestPipelineToKafka runs a news batch through the pipeline backed by a
// real SQLite store and verifies that each inserted incident, and only
// those, reaches the Kafka topic.
func TestPipelineToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "incidents.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafkaadapter.NewWriter(&config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}, logger, metrics)

	p := pipeline.New(store, logger, metrics,
		pipeline.WithRecorder(store),
		pipeline.WithPublisher(pipeline.NewFanout(logger, metrics, pipeline.Sink{Name: "kafka", Publisher: writer})),
	)

	batch := []domain.Candidate{
		{Title: "Heavy rain floods Velachery", URL: domain.StringPtr("https://news.example/velachery")},
		{Title: "Fire at T Nagar warehouse", URL: domain.StringPtr("https://news.example/tnagar")},
		{Title: "Heavy rain floods Velachery", URL: domain.StringPtr("https://news.example/velachery")},
	}
	job := pipeline.Job{
		Source:  domain.SourceNews,
		Fetcher: domain.FetcherFunc(func(context.Context) ([]domain.Candidate, error) { return batch, nil }),
	}

	tally, err := p.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.Tally{Fetched: 3, Inserted: 2, Skipped: 1}, tally)

	// A second run over the same batch inserts nothing and publishes nothing.
	tally, err = p.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.Tally{Fetched: 3, Skipped: 3}, tally)

	// Close flushes the async writer.
	require.NoError(t, writer.Close())

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })

	categories := map[string]string{}
	for range 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read incident update")

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, domain.EventIncidentUpdate, headers["event"])
		assert.Equal(t, "news", headers["source"])

		var env kafkaadapter.Envelope
		require.NoError(t, json.Unmarshal(msg.Value, &env))
		assert.Equal(t, domain.EventIncidentUpdate, env.Event)
		categories[env.Data["url"].(string)] = env.Data["category"].(string)
	}
	assert.Equal(t, map[string]string{
		"https://news.example/velachery": "flood",
		"https://news.example/tnagar":    "fire",
	}, categories)

	// Nothing else was published.
	readCtx, readCancel := context.WithTimeout(ctx, 3*time.Second)
	defer readCancel()
	_, err = reader.ReadMessage(readCtx)
	assert.Error(t, err, "expected no further messages")

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
