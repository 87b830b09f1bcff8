package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.GraphQL.Introspection)
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout)
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  timeout: 3s
  cors_origins: ["https://a.example", "https://b.example"]
graphql:
  introspection: false
log:
  format: console
`)
	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.GraphQL.Introspection)
	assert.Equal(t, "console", cfg.Log.Format)
	// untouched
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadFile(cfg, filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, LoadFile(cfg, writeFile(t, "server: [")))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "GRAPHSERVE_SERVER_MAX_BODY_BYTES", EnvName("server.max-body-bytes"))
	assert.Equal(t, "GRAPHSERVE_WS_KEEPALIVE", EnvName("ws.keepalive"))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, env(map[string]string{
		"GRAPHSERVE_SERVER_PRETTY":          "true",
		"GRAPHSERVE_SERVER_METADATA_HEADER": "authorization, x-tenant",
		"GRAPHSERVE_GRAPHQL_MAX_BATCH_SIZE": "7",
		"GRAPHSERVE_WS_INIT_TIMEOUT":        "2s",
		"GRAPHSERVE_SERVER_MAX_BODY_BYTES":  "2048",
		"GRAPHSERVE_UNRELATED":              "ignored",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.Server.Pretty)
	assert.Equal(t, []string{"authorization", "x-tenant"}, cfg.Server.MetadataHeaders)
	assert.Equal(t, 7, cfg.GraphQL.MaxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.WS.InitTimeout)
	assert.Equal(t, int64(2048), cfg.Server.MaxBodyBytes)
}

func TestApplyEnvCollectsErrors(t *testing.T) {
	err := ApplyEnv(Default(), env(map[string]string{
		"GRAPHSERVE_SERVER_PRETTY":   "maybe",
		"GRAPHSERVE_GRAPHQL_WORKERS": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRAPHSERVE_SERVER_PRETTY")
	assert.Contains(t, err.Error(), "GRAPHSERVE_GRAPHQL_WORKERS")
}

func TestParsePrecedence(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":7000"
  timeout: 1s
log:
  level: debug
`)
	cfg, err := Parse(newFlagSet(), []string{
		"-config", path,
		"-server.addr", ":6000",
		"-server.pretty",
		"-server.cors-origin", "https://a.example",
		"-server.cors-origin", "https://b.example",
	}, env(map[string]string{
		"GRAPHSERVE_SERVER_ADDR":    ":5000",
		"GRAPHSERVE_SERVER_TIMEOUT": "4s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.Addr, "flag beats env and file")
	assert.Equal(t, 4*time.Second, cfg.Server.Timeout, "env beats file")
	assert.Equal(t, "debug", cfg.Log.Level, "file beats default")
	assert.True(t, cfg.Server.Pretty)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestParseRestArgs(t *testing.T) {
	fs := newFlagSet()
	_, err := Parse(fs, []string{"-graphql.introspection=false", "extra"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, fs.Args())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(newFlagSet(), []string{"-no-such-flag"}, env(nil))
	assert.Error(t, err)

	_, err = Parse(newFlagSet(), []string{"-graphql.workers", "x"}, env(nil))
	assert.ErrorContains(t, err, "-graphql.workers")

	_, err = Parse(newFlagSet(), []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")}, env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.GraphQL.MaxBatchSize = -1
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Otel.Endpoint = "localhost:4317"
	cfg.Otel.Service = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"server.addr",
		"graphql.max-batch-size",
		"log.level",
		"log.format",
		"otel.service",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
