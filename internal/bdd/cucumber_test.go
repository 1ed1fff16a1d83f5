package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/cmd/serve"
	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/testutil/cucumber"
	"github.com/chirino/unimsg/internal/testutil/testsqlite"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"
)

func TestFeatures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = config.DatastoreSQLite
	cfg.DBURL = testsqlite.DSN(t)
	runFeatures(t, cfg)
}

// runFeatures starts the server over cfg's datastore and runs every feature
// file against it.
func runFeatures(t *testing.T, cfg config.Config) {
	t.Helper()
	cfg.Mode = config.ModeTesting
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	cfg.CORSEnabled = true

	srv, err := serve.StartServer(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	apiURL := fmt.Sprintf("http://localhost:%d", srv.Running.Port)

	featureFiles, err := filepath.Glob(filepath.Join("features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "No feature files found")

	opts := cucumber.DefaultOptions()
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
