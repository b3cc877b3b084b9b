//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestOpen_Postgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("manubot"),
		postgres.WithUsername("manubot"),
		postgres.WithPassword("manubot"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	c := Open(ctx, dsn, OpenOptions{Logger: zerolog.Nop()})
	defer c.Close()
	require.Equal(t, BackendPostgres, c.Backend())

	_, outcome, err := c.Fetch(ctx, testKey, func(context.Context) ([]byte, error) { return []byte("x"), nil })
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)

	// a second cache over the same database sees the entry
	other := Open(ctx, dsn, OpenOptions{Logger: zerolog.Nop()})
	defer other.Close()
	got, ok := other.Get(ctx, testKey)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, c.Clear(ctx))
	_, ok = other.Get(ctx, testKey)
	assert.False(t, ok)
}
