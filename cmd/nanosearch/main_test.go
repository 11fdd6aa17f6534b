package main

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coffersTech/nanosearch/internal/auth"
	"github.com/coffersTech/nanosearch/internal/config"
	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/coffersTech/nanosearch/internal/server"
	"github.com/coffersTech/nanosearch/internal/storage"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "", "parse", "apple", "|", "pear")
	require.NoError(t, err)
	assert.Equal(t, "Operator(or)\n  Word(apple)\n  Word(pear)\n", out)

	out, err = run(t, "", "parse", "--json", `"red pear"`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"phrase","value":"red pear","quote":"\""}]`, out)

	_, err = run(t, "", "parse")
	assert.Error(t, err)
}

const lines = `{"level":"info","msg":"apple orange"}
{"level":"error","msg":"banana lemon"}
not json at all, apple lemon
{"level":"warn","msg":"grape"}
`

func TestGrepCommand(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(plain, []byte(lines), 0644))

	tests := []struct {
		name     string
		args     []string
		stdin    string
		expected string
	}{
		{
			name:     "whole line",
			args:     []string{"grep", "apple AND lemon", plain},
			expected: "not json at all, apple lemon\n",
		},
		{
			name:     "json field",
			args:     []string{"grep", "--field", "msg", "(apple OR banana) AND (orange OR lemon)", plain},
			expected: "{\"level\":\"info\",\"msg\":\"apple orange\"}\n{\"level\":\"error\",\"msg\":\"banana lemon\"}\n",
		},
		{
			name:     "count",
			args:     []string{"grep", "-c", "apple", plain},
			expected: "2\n",
		},
		{
			name:     "line numbers",
			args:     []string{"grep", "-n", "grape", plain},
			expected: "4:{\"level\":\"warn\",\"msg\":\"grape\"}\n",
		},
		{
			name:     "stdin",
			args:     []string{"grep", "lemon"},
			stdin:    "lemon tart\nkiwi\n",
			expected: "lemon tart\n",
		},
		{
			name:     "multiple files",
			args:     []string{"grep", "kiwi", plain, "-"},
			stdin:    "kiwi\n",
			expected: "-:kiwi\n",
		},
		{
			name:     "empty query matches all",
			args:     []string{"grep", "-c", "", plain},
			expected: "4\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestGrepCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(lines))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	out, err := run(t, "", "grep", "-f", "level", "error", path)
	require.NoError(t, err)
	assert.Equal(t, "{\"level\":\"error\",\"msg\":\"banana lemon\"}\n", out)
}

func TestGrepMissingFile(t *testing.T) {
	_, err := run(t, "", "grep", "apple", filepath.Join(t.TempDir(), "missing.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "", "token", "--name", "shipper", "--scope", "write")
	require.NoError(t, err)

	secretLine, snippet, ok := strings.Cut(out, "\n\nAdd to your config file:\n\n")
	require.True(t, ok, out)
	secret := strings.TrimPrefix(secretLine, "Secret (shown only once): ")
	assert.True(t, strings.HasPrefix(secret, auth.SecretPrefix))

	var parsed struct {
		Tokens []auth.Token `yaml:"tokens"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(snippet), &parsed))
	require.Len(t, parsed.Tokens, 1)
	assert.Equal(t, "shipper", parsed.Tokens[0].Name)
	assert.Equal(t, auth.ScopeWrite, parsed.Tokens[0].Scope)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(parsed.Tokens[0].Hash), []byte(secret)))

	_, err = run(t, "", "token")
	assert.Error(t, err)
	_, err = run(t, "", "token", "--name", "x", "--scope", "admin")
	assert.ErrorIs(t, err, auth.ErrInvalidScope)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanosearch.yaml")

	out, err := run(t, "", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = run(t, "", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "", "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestLoadConfigLogLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanosearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))

	flags := &globalFlags{configPath: path}
	cfg, err := flags.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	flags.logLevel = "debug"
	cfg, err = flags.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	logger, err := newLogger(cfg.Log)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestIngestAndSearchCommands(t *testing.T) {
	w, err := storage.NewSegmentWriter()
	require.NoError(t, err)
	r, err := storage.NewSegmentReader()
	require.NoError(t, err)
	qe, err := engine.NewQueryEngine(engine.Options{DataDir: t.TempDir()}, r.ReadSnapshot, w.WriteSnapshot, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(qe, nil, nil, server.Options{}).Handler())
	defer func() {
		ts.Close()
		qe.Close()
		w.Close()
		r.Close()
	}()

	out, err := run(t, "apple orange\n\nbanana lemon\ngrape\n",
		"ingest", "--server", ts.URL, "--source", "fruit", "--batch-size", "2")
	require.NoError(t, err)
	assert.Equal(t, "Ingested 3 documents\n", out)

	out, err = run(t, "", "search", "--server", ts.URL, "apple OR lemon")
	require.NoError(t, err)
	outLines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, outLines, 2)
	assert.True(t, strings.HasSuffix(outLines[0], "[fruit] banana lemon"))
	assert.True(t, strings.HasSuffix(outLines[1], "[fruit] apple orange"))

	out, err = run(t, "", "search", "--server", ts.URL, "--json", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"text": "grape"`)

	// the same server twice returns every match twice
	out, err = run(t, "", "search", "--server", ts.URL, "--server", ts.URL, "lemon")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	out, err = run(t, "", "stats", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_docs": 3`)
	assert.Contains(t, out, `"fruit": 3`)

	_, err = run(t, "", "ingest", "--server", ts.URL, "--batch-size", "0")
	assert.Error(t, err)
	_, err = run(t, "", "ingest", "--server", ts.URL, "--server", ts.URL)
	assert.ErrorContains(t, err, "expected one --server")
}
