package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/config"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "mcp", "extract"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "curator", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"text", "url", "file", "session", "mode", "target", "commit", "min-confidence"} {
		assert.NotNil(t, extractCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0.8", extractCmd.Flags().Lookup("min-confidence").DefValue)
}

func resetExtractFlags() {
	extractText, extractURL, extractFile, extractSession, extractMode = "", "", "", "", ""
	extractTargets = nil
}

func TestBuildExtractRequest(t *testing.T) {
	t.Cleanup(resetExtractFlags)

	resetExtractFlags()
	_, err := buildExtractRequest()
	require.Error(t, err)

	extractText = "Facebook has a 2-hour lag"
	extractURL = "https://example.com"
	_, err = buildExtractRequest()
	require.Error(t, err)

	extractURL = ""
	extractTargets = []string{"platform_quirk"}
	extractMode = "legacy"
	req, err := buildExtractRequest()
	require.NoError(t, err)
	assert.Equal(t, curator.ContentText, req.ContentType)
	assert.Equal(t, curator.ModeLegacy, req.Mode)
	require.Len(t, req.TargetTypes, 1)
	assert.Equal(t, "platform_quirk", string(req.TargetTypes[0]))
}

func TestBuildExtractRequest_File(t *testing.T) {
	t.Cleanup(resetExtractFlags)
	resetExtractFlags()

	path := t.TempDir() + "/notes.md"
	require.NoError(t, os.WriteFile(path, []byte("TikTok Spark Ads need creator authorization."), 0o600))
	extractFile = path

	req, err := buildExtractRequest()
	require.NoError(t, err)
	assert.Equal(t, curator.ContentFile, req.ContentType)
	assert.Equal(t, "notes.md", req.FileName)
	assert.Contains(t, req.Content, "Spark Ads")
}

func TestInitStore(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "curator.db")}}
	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Close())

	cfg.Store.Driver = "mysql"
	_, err = initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitCurator_InvalidConfig(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}
	_, err := initCurator(context.Background(), "serve")
	assert.ErrorContains(t, err, "anthropic.key is required")
}
