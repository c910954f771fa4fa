//go:build integration

package asset_test

import (
	"context"
	"testing"
	"time"

	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func spawnDatabase(t *testing.T) database.Manager {
	ctx := context.Background()
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14-alpine"),
		postgres.WithDatabase("MARQUEE_TEST"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	manager := database.New()
	require.NoError(t, manager.ConnectDSN(dsn, 5), "failed to connect/migrate database")
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

func Test_StoreRegistrar_RoundTrip(t *testing.T) {
	db := spawnDatabase(t)
	registrar := asset.NewStoreRegistrar(db, asset.NewStore())
	ctx := context.Background()

	registration := registrar.Register(ctx, testRecord)
	require.True(t, registration.Success, "registration failed: %s", registration.Error)

	second := testRecord
	second.Title = "raw_clip"
	second.ThumbnailURL = ""
	require.True(t, registrar.Register(ctx, second).Success)

	assets, err := registrar.List(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	found, err := registrar.GetByTitle(ctx, "raw_clip")
	require.NoError(t, err)
	assert.Equal(t, second, found.Record)
	assert.False(t, found.CreatedAt.IsZero())

	_, err = registrar.GetByTitle(ctx, "not a real title")
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)
}

func Test_StoreRegistrar_InsertSemantics(t *testing.T) {
	db := spawnDatabase(t)
	registrar := asset.NewStoreRegistrar(db, asset.NewStore())
	ctx := context.Background()

	require.True(t, registrar.Register(ctx, testRecord).Success)
	require.True(t, registrar.Register(ctx, testRecord).Success)

	assets, err := registrar.List(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.NotEqual(t, assets[0].ID, assets[1].ID)
}
