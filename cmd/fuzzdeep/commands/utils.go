/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the FuzzDeep commands. Provides configuration loading, logging
setup and the conversion of viper settings into a run configuration.
*/

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/kleascm/fuzzdeep/pkg/logging"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags "-X ...commands.Version=..."
var Version = "1.0.0"

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	viper.SetEnvPrefix("FUZZDEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// SetupLogging builds the run logger from the logging settings
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultLoggerConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")

	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// createRunConfig builds the run configuration from flags, config file and environment
func createRunConfig() *core.Config {
	config := core.DefaultConfig()
	config.PackageName = viper.GetString("package")
	config.Target = viper.GetString("target")
	config.FuzzSeed = viper.GetString("fuzz")
	config.Iterations = viper.GetInt("iterations")
	config.Wordlist = viper.GetString("wordlist")
	config.Sleep = time.Duration(viper.GetInt("sleep")) * time.Second
	config.KeyDir = viper.GetString("keys")

	config.Serial = viper.GetString("serial")
	config.ADBPath = viper.GetString("adb")
	config.AuthTimeout = viper.GetDuration("auth_timeout")
	config.KeepServer = viper.GetBool("keep_adb_server")

	config.Engine = viper.GetString("engine")
	config.EngineSeed = viper.GetInt64("engine_seed")
	config.HasEngineSeed = viper.IsSet("engine_seed")

	config.DetectCrashes = viper.GetBool("detect_crashes")
	config.CrashDir = viper.GetString("crash_dir")
	config.MetricsAddr = viper.GetString("metrics_addr")
	return config
}
