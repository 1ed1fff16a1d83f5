package bdd

import (
	"testing"

	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/testutil/testmongo"
)

func TestFeaturesMongo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed feature run in short mode")
	}
	cfg := config.DefaultConfig()
	cfg.DatastoreType = config.DatastoreMongo
	cfg.DBURL = testmongo.StartMongo(t)
	cfg.DBName = "unimsg_bdd"
	runFeatures(t, cfg)
}
