package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database("querylens_test")
}

func TestMongoRepositories_Integration(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()

	t.Run("snippet text search", func(t *testing.T) {
		store := NewMongoSnippetStore(db)
		require.NoError(t, store.EnsureIndexes(ctx))
		require.NoError(t, store.Upsert(ctx, []model.Snippet{
			{ID: "s1", Kind: model.KindSchema, Text: "patients subject_id gender dod"},
			{ID: "s2", Kind: model.KindSchema, Text: "admissions hadm_id admittime"},
			{ID: "e1", Kind: model.KindExample, Text: "count patients by gender"},
		}))

		got, err := store.Search(ctx, model.KindSchema, "patients gender", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "s1", got[0].ID)
	})

	t.Run("audit newest first", func(t *testing.T) {
		audit := NewMongoAuditLog(db)
		base := time.Now().UTC()
		for i := 0; i < 3; i++ {
			require.NoError(t, audit.Append(ctx, model.AuditEvent{
				ID:         fmt.Sprintf("a%d", i),
				ExecutedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}
		events, err := audit.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "a2", events[0].ID)
	})

	t.Run("cost summary", func(t *testing.T) {
		ledger := NewMongoCostLedger(db)
		require.NoError(t, ledger.Record(ctx, model.CostEntry{ID: "c1", Model: "flash", PromptTokens: 10, CompletionTokens: 2}))
		require.NoError(t, ledger.Record(ctx, model.CostEntry{ID: "c2", Model: "flash", PromptTokens: 5, CompletionTokens: 1}))

		summary, err := ledger.Summary(ctx)
		require.NoError(t, err)
		require.Len(t, summary, 1)
		assert.Equal(t, 2, summary[0].Calls)
		assert.Equal(t, 15, summary[0].PromptTokens)
	})
}
