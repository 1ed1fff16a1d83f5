package mongo_test

import (
	"context"
	"testing"

	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/plugin/store/mongo"
	"github.com/chirino/unimsg/internal/plugin/store/storetest"
	registrymigrate "github.com/chirino/unimsg/internal/registry/migrate"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.MessageStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	cfg.DBName = "unimsg_test"
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure mongo store plugin is registered
	_ = mongo.ForceImport

	// Run migrations
	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select(config.DatastoreMongo)
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, ctx
}

func TestMongoStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("mongodb container test skipped in short mode")
	}
	store, _ := setupTestStore(t)
	storetest.RunSuite(t, store)
}
