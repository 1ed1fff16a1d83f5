package bdd

import (
	"testing"

	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/testutil/testpg"
)

func TestFeaturesPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed feature run in short mode")
	}
	cfg := config.DefaultConfig()
	cfg.DatastoreType = config.DatastorePostgres
	cfg.DBURL = testpg.StartPostgres(t)
	runFeatures(t, cfg)
}
