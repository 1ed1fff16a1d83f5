package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/config"
	"github.com/stretchr/testify/require"
)

func TestStartSinglePortHTTP_ServesPlainAndTLSOnOnePort(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "tls=%t", r.TLS != nil)
	})
	running, err := StartSinglePortHTTP("test", config.ListenerConfig{
		EnablePlainText: true,
		EnableTLS:       true,
	}, handler)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = running.Close(ctx)
	})
	require.NotZero(t, running.Port)

	get := func(client *http.Client, url string) string {
		resp, err := client.Get(url)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	plain := &http.Client{Timeout: 5 * time.Second}
	require.Equal(t, "tls=false", get(plain, fmt.Sprintf("http://127.0.0.1:%d/", running.Port)))

	secure := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
	require.Equal(t, "tls=true", get(secure, fmt.Sprintf("https://127.0.0.1:%d/", running.Port)))
}

func TestStartSinglePortHTTP_RequiresAProtocol(t *testing.T) {
	_, err := StartSinglePortHTTP("test", config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}

func TestManagementRouter_ServesHealthOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ManagementListenerEnabled = true
	cfg.ManagementListener.Port = 0

	running, err := startManagementServer(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close(context.Background()) })

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", running.Port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/participants", running.Port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
