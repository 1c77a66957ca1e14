//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical/flyer-extractor/internal/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flyers_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/flyers_test?sslmode=disable", host, port.Port())
}

func TestPostgresCatalog(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{Driver: "postgres", DSN: startPostgres(t), MaxOpenConns: 4})
	require.NoError(t, err)
	defer store.Close()

	// Schema is idempotent.
	require.NoError(t, store.Migrate(ctx))

	saved, err := store.Save(ctx, "pg-1", sampleProducts())
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Greater(t, saved[2].ID, saved[0].ID)

	page, err := store.List(ctx, domain.ProductFilter{Query: "barilla"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, store.UpdateStatus(ctx, domain.ExtractionJob{ID: "pg-1", Status: domain.JobProcessing, Progress: 50}))
	require.NoError(t, store.UpdateStatus(ctx, domain.ExtractionJob{ID: "pg-1", Status: domain.JobCompleted, Progress: 100, TotalProducts: 3}))

	job, err := store.LatestJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalProducts)

	retailers, err := store.Retailers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Deco"}, retailers)
}
