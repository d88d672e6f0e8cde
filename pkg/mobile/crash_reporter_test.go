/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: crash_reporter_test.go
Description: Tests for logcat crash parsing and crash report output.
*/

package mobile

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleLogcat = []string{
	"01-02 10:00:00.000  1000  1000 I ActivityTaskManager: START u0 {act=android.intent.action.VIEW}",
	"01-02 10:00:00.100  1234  1234 E AndroidRuntime: FATAL EXCEPTION: main",
	"01-02 10:00:00.100  1234  1234 E AndroidRuntime: Process: com.example.app, PID: 1234",
	"01-02 10:00:00.100  1234  1234 E AndroidRuntime: java.lang.NullPointerException: uri host",
	"01-02 10:00:00.100  1234  1234 E AndroidRuntime: \tat com.example.app.DeepLinkActivity.onCreate(DeepLinkActivity.java:42)",
	"01-02 10:00:00.100  1234  1234 E AndroidRuntime: Caused by: java.lang.IllegalStateException",
	"01-02 10:00:00.200  1000  1000 I ActivityManager: Process com.example.app (pid 1234) has died",
	"01-02 10:00:01.000  1000  1000 E ActivityManager: ANR in com.other.app (com.other.app/.Main)",
	"01-02 10:00:02.000  1000  1000 E ActivityManager: ANR in com.example.app (com.example.app/.Main)",
	"01-02 10:00:02.000  1000  1000 E ActivityManager: PID: 1234",
}

func TestParseCrashes(t *testing.T) {
	reports := ParseCrashes(sampleLogcat, "com.example.app", "https://app?x")
	require.Len(t, reports, 2)
	assert.Equal(t, "run-1", reports[1].RunID)

	crash := reports[0]
	assert.Equal(t, "crash", crash.Type)
	assert.Equal(t, "https://app?x", crash.Payload)
	assert.Contains(t, crash.Message, "FATAL EXCEPTION")
	assert.Len(t, crash.Logs, 5)
	assert.Contains(t, crash.StackTrace, "DeepLinkActivity.onCreate")
	assert.Contains(t, crash.StackTrace, "Caused by:")
	assert.Equal(t, 10, crash.Timestamp.Hour())
	assert.NotEmpty(t, crash.ID)

	assert.Equal(t, "anr", reports[1].Type)
	assert.Contains(t, reports[1].Message, "com.example.app")
}

func TestParseCrashesNone(t *testing.T) {
	assert.Empty(t, ParseCrashes(sampleLogcat[:1], "com.example.app", ""))
	assert.Empty(t, ParseCrashes(nil, "com.example.app", ""))
}

type fakeLogSource struct {
	cleared int
	lines   []string
}

func (f *fakeLogSource) ClearLogs(ctx context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeLogSource) Logs(ctx context.Context) ([]string, error) {
	return f.lines, nil
}

func TestCrashCollector(t *testing.T) {
	source := &fakeLogSource{lines: sampleLogcat}
	dir := t.TempDir()
	collector := NewCrashCollector(source, "com.example.app", dir)
	collector.SetRunID("run-1")

	require.NoError(t, collector.Prepare(context.Background()))
	assert.Equal(t, 1, source.cleared)

	reports, err := collector.Collect(context.Background(), "https://app?boom")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	path, err := collector.Report(reports[0])
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Crash Report for com.example.app")
	assert.Contains(t, string(content), `Payload: "https://app?boom"`)
	assert.Contains(t, string(content), "NullPointerException")
	assert.Contains(t, string(content), "Run: run-1")
}
