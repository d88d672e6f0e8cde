/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: Tests for the FuzzDeep commands: configuration mapping, key generation, manifest
discovery and exit codes for runs that fail before reaching the device.
*/

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("log_level", "error")
	viper.Set("log_format", "text")
}

func TestCreateRunConfig(t *testing.T) {
	resetViper(t)
	viper.Set("package", "com.example.app")
	viper.Set("target", "app://open?FUZZ")
	viper.Set("fuzz", "seed")
	viper.Set("iterations", 7)
	viper.Set("sleep", 2)
	viper.Set("keys", "/tmp/keys")
	viper.Set("auth_timeout", "250ms")
	viper.Set("engine", "builtin")
	viper.Set("engine_seed", 42)
	viper.Set("keep_adb_server", true)

	config := createRunConfig()
	assert.Equal(t, "com.example.app", config.PackageName)
	assert.Equal(t, "app://open?FUZZ", config.Target)
	assert.Equal(t, "seed", config.FuzzSeed)
	assert.Equal(t, 7, config.Iterations)
	assert.Equal(t, 2*time.Second, config.Sleep)
	assert.Equal(t, "/tmp/keys", config.KeyDir)
	assert.Equal(t, 250*time.Millisecond, config.AuthTimeout)
	assert.Equal(t, "builtin", config.Engine)
	assert.Equal(t, int64(42), config.EngineSeed)
	assert.True(t, config.HasEngineSeed)
	assert.True(t, config.KeepServer)
}

func TestLoadConfigFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "fuzzdeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("package: com.example.file\niterations: 3\n"), 0644))
	viper.Set("config", path)

	require.NoError(t, LoadConfig())
	config := createRunConfig()
	assert.Equal(t, "com.example.file", config.PackageName)
	assert.Equal(t, 3, config.Iterations)
}

func TestLoadConfigMissingFile(t *testing.T) {
	resetViper(t)
	viper.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, LoadConfig())
}

func TestRunFuzzMissingKeys(t *testing.T) {
	resetViper(t)
	viper.Set("package", "com.example.app")
	viper.Set("target", "https://app?FUZZ")
	viper.Set("fuzz", "x")
	viper.Set("keys", t.TempDir())
	viper.Set("auth_timeout", "500ms")

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := RunFuzz(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adb key was not found")
	assert.Equal(t, core.ExitConfig, core.ExitCode(err))
}

func TestRunFuzzMissingMarker(t *testing.T) {
	resetViper(t)
	viper.Set("package", "com.example.app")
	viper.Set("target", "https://app?q=")
	viper.Set("fuzz", "x")
	viper.Set("auth_timeout", "500ms")

	cmd := &cobra.Command{}
	err := RunFuzz(cmd, nil)
	require.Error(t, err)
	assert.Equal(t, core.ExitConfig, core.ExitCode(err))
}

func TestKeygenCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	var out bytes.Buffer

	cmd := NewKeygenCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--keys", dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), filepath.Join(dir, "adbkey"))
	assert.Contains(t, out.String(), "Fingerprint: ")
	assert.FileExists(t, filepath.Join(dir, "adbkey.pub"))

	again := NewKeygenCommand()
	again.SetOut(&bytes.Buffer{})
	again.SetErr(&bytes.Buffer{})
	again.SetArgs([]string{"--keys", dir})
	err := again.Execute()
	require.Error(t, err)
	assert.Equal(t, core.ExitConfig, core.ExitCode(err))
}

const discoverManifest = `<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="com.example.app">
  <application>
    <activity android:name=".LinkActivity">
      <intent-filter>
        <action android:name="android.intent.action.VIEW"/>
        <data android:scheme="example" android:host="open"/>
      </intent-filter>
    </activity>
  </application>
</manifest>`

func TestDiscoverCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AndroidManifest.xml")
	require.NoError(t, os.WriteFile(path, []byte(discoverManifest), 0644))
	var out bytes.Buffer

	cmd := NewDiscoverCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--manifest", path})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, []string{"example://open?FUZZ"}, strings.Fields(out.String()))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewVersionCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "fuzzdeep "+Version))
}
