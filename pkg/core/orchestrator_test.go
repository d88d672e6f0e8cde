/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator_test.go
Description: Tests for run orchestration: ordering of the modes, key and connection failures,
exit code mapping and session release on every path.
*/

package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/logging"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/kleascm/fuzzdeep/pkg/strategies"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	events    []string
	launchErr error
	closed    int
}

func (s *fakeSession) StartView(ctx context.Context, uri string) error {
	s.events = append(s.events, "start "+uri)
	return s.launchErr
}

func (s *fakeSession) ForceStop(ctx context.Context, pkg string) error {
	s.events = append(s.events, "stop "+pkg)
	return nil
}

func (s *fakeSession) ClearLogs(ctx context.Context) error { return nil }

func (s *fakeSession) Logs(ctx context.Context) ([]string, error) { return nil, nil }

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func (s *fakeSession) launches() []string {
	var out []string
	for _, e := range s.events {
		if strings.HasPrefix(e, "start ") {
			out = append(out, strings.TrimPrefix(e, "start "))
		}
	}
	return out
}

type countingEngine struct{ calls int }

func (e *countingEngine) Fuzz(ctx context.Context, seed []byte) ([]byte, error) {
	e.calls++
	return append([]byte(nil), seed...), nil
}

func (e *countingEngine) Name() string { return "counting" }

type harness struct {
	orchestrator *Orchestrator
	session      *fakeSession
	engine       *countingEngine
	connects     int
	sleeps       int
	output       *bytes.Buffer
}

func newHarness(t *testing.T, config *Config) *harness {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelInfo,
		Format: logging.LogFormatCustom,
		Output: buf,
	})
	require.NoError(t, err)

	h := &harness{session: &fakeSession{}, engine: &countingEngine{}, output: buf}
	h.orchestrator = NewOrchestrator(config, logger)
	h.orchestrator.SetSignerLoader(func(dir string) (*mobile.Signer, error) {
		return &mobile.Signer{Dir: dir}, nil
	})
	h.orchestrator.SetConnector(func(ctx context.Context, signer *mobile.Signer, opts mobile.ConnectOptions) (DeviceSession, error) {
		h.connects++
		return h.session, nil
	})
	h.orchestrator.SetEngineFactory(func(strategies.EngineConfig) (strategies.Engine, error) {
		return h.engine, nil
	})
	h.orchestrator.SetSleeper(func(ctx context.Context, d time.Duration) error {
		h.sleeps++
		return ctx.Err()
	})
	return h
}

func testConfig() *Config {
	config := DefaultConfig()
	config.PackageName = "com.example.app"
	return config
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunWordlistEndToEnd(t *testing.T) {
	config := testConfig()
	config.Wordlist = writeFile(t, "words.txt", "abc\ndef\n")
	h := newHarness(t, config)

	stats, err := h.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"start https://app?abc\n",
		"stop com.example.app",
		"start https://app?def\n",
		"stop com.example.app",
	}, h.session.events)
	assert.Equal(t, 2, h.sleeps)
	assert.Equal(t, 2, stats.WordlistRun)
	assert.Equal(t, int64(2), stats.Dispatched)
	assert.Equal(t, 1, h.session.closed)
	assert.Zero(t, h.engine.calls)
}

func TestRunFuzzSingleIteration(t *testing.T) {
	config := testConfig()
	config.FuzzSeed = "test"
	config.Iterations = 1
	h := newHarness(t, config)

	stats, err := h.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.engine.calls)
	assert.Equal(t, []string{"https://app?test"}, h.session.launches())
	assert.Equal(t, 1, stats.FuzzRun)

	expected := `
# HELP fuzzdeep_mutations_total Mutation engine invocations, by engine.
# TYPE fuzzdeep_mutations_total counter
fuzzdeep_mutations_total{engine="counting"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.orchestrator.Metrics().Registry(), strings.NewReader(expected), "fuzzdeep_mutations_total"))
}

func TestRunWordlistBeforeFuzz(t *testing.T) {
	config := testConfig()
	config.Wordlist = writeFile(t, "words.txt", "w1\n")
	config.FuzzSeed = "f"
	config.Iterations = 2
	h := newHarness(t, config)

	_, err := h.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app?w1\n", "https://app?f", "https://app?f"}, h.session.launches())
	assert.Equal(t, 2, h.engine.calls)
}

func TestRunMissingKeysNeverConnects(t *testing.T) {
	config := testConfig()
	config.KeyDir = t.TempDir()
	config.FuzzSeed = "x"
	h := newHarness(t, config)
	h.orchestrator.SetSignerLoader(mobile.LoadSigner)

	_, err := h.orchestrator.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mobile.ErrKeyNotFound)
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Zero(t, h.connects)
	assert.Zero(t, h.engine.calls)
}

func TestRunMissingMarker(t *testing.T) {
	config := testConfig()
	config.Target = "https://app?q="
	config.FuzzSeed = "x"
	h := newHarness(t, config)

	_, err := h.orchestrator.Run(context.Background())
	assert.ErrorIs(t, err, payload.ErrMissingMarker)
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Zero(t, h.connects)
	assert.Zero(t, h.engine.calls)
	assert.Empty(t, h.session.events)
}

func TestRunConnectionFailure(t *testing.T) {
	config := testConfig()
	config.FuzzSeed = "x"
	h := newHarness(t, config)
	h.orchestrator.SetConnector(func(context.Context, *mobile.Signer, mobile.ConnectOptions) (DeviceSession, error) {
		return nil, mobile.ErrConnection
	})

	_, err := h.orchestrator.Run(context.Background())
	assert.ErrorIs(t, err, mobile.ErrConnection)
	assert.Equal(t, ExitConnection, ExitCode(err))
	assert.Zero(t, h.engine.calls)
}

func TestRunLaunchFailureReleasesSession(t *testing.T) {
	config := testConfig()
	config.FuzzSeed = "x"
	h := newHarness(t, config)
	h.session.launchErr = errors.New("device offline")

	_, err := h.orchestrator.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitRuntime, ExitCode(err))
	assert.Equal(t, 1, h.session.closed)
	assert.Equal(t, 1, h.engine.calls)
}

func TestRunInterruptedStopsAndReleases(t *testing.T) {
	config := testConfig()
	config.FuzzSeed = "x"
	config.Iterations = 100
	h := newHarness(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	h.orchestrator.SetSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := h.orchestrator.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"start https://app?x", "stop com.example.app"}, h.session.events)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunNothingToDo(t *testing.T) {
	h := newHarness(t, testConfig())

	stats, err := h.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Dispatched)
	assert.Equal(t, 1, h.connects)
	assert.Equal(t, 1, h.session.closed)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no package", func(c *Config) { c.PackageName = "" }, "package name"},
		{"two markers", func(c *Config) { c.Target = "FUZZ://FUZZ" }, "more than one"},
		{"negative iterations", func(c *Config) { c.Iterations = -1 }, "iterations"},
		{"negative sleep", func(c *Config) { c.Sleep = -time.Second }, "sleep"},
		{"zero auth timeout", func(c *Config) { c.AuthTimeout = 0 }, "auth timeout"},
		{"bad engine", func(c *Config) { c.Engine = "afl" }, "unsupported"},
		{"crash dir", func(c *Config) { c.DetectCrashes = true; c.CrashDir = "" }, "crash directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitRuntime, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitConfig, ExitCode(&RunError{Kind: KindConfig, Err: errors.New("x")}))
	assert.Equal(t, ExitConnection, ExitCode(&RunError{Kind: KindConnection, Err: errors.New("x")}))

	wrapped := newRunError(KindRuntime, newRunError(KindConfig, errors.New("x")))
	assert.Equal(t, ExitConfig, ExitCode(wrapped))
	assert.Nil(t, newRunError(KindConfig, nil))
}

// execLikeRunner answers adb calls and, like fork/exec, refuses arguments containing NUL
type execLikeRunner struct {
	commands []string
}

func (r *execLikeRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	for _, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return nil, errors.New("fork/exec adb: invalid argument")
		}
	}
	joined := strings.Join(args, " ")
	r.commands = append(r.commands, joined)
	switch joined {
	case "start-server":
		return []byte("* daemon started successfully\n"), nil
	case "get-state":
		return []byte("device\n"), nil
	}
	return nil, nil
}

type fixedEngine struct{ output []byte }

func (e fixedEngine) Fuzz(context.Context, []byte) ([]byte, error) { return e.output, nil }
func (e fixedEngine) Name() string                               { return "fixed" }

func TestRunFuzzPayloadWithNUL(t *testing.T) {
	config := testConfig()
	config.FuzzSeed = "test"
	config.Iterations = 2
	h := newHarness(t, config)

	runner := &execLikeRunner{}
	h.orchestrator.SetConnector(func(ctx context.Context, signer *mobile.Signer, opts mobile.ConnectOptions) (DeviceSession, error) {
		opts.Runner = runner
		return mobile.Connect(ctx, signer, opts)
	})
	h.orchestrator.SetEngineFactory(func(strategies.EngineConfig) (strategies.Engine, error) {
		return fixedEngine{output: []byte("te\x00st")}, nil
	})

	stats, err := h.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FuzzRun)

	launch := "shell am start -a android.intent.action.VIEW -d 'https://app?te'"
	var launches int
	for _, c := range runner.commands {
		if c == launch {
			launches++
		}
	}
	assert.Equal(t, 2, launches)
	assert.Contains(t, runner.commands, "shell am force-stop com.example.app")
}
