/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for a FuzzDeep run. Defines the run configuration with its defaults and
validation, and the statistics returned when a run finishes.
*/

package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/kleascm/fuzzdeep/pkg/strategies"
)

// Config holds every setting of a run. It is set once at startup and not changed afterwards.
type Config struct {
	PackageName string        `json:"package_name"` // Package force-stopped after every payload
	Target      string        `json:"target"`       // Target template containing the FUZZ marker
	FuzzSeed    string        `json:"fuzz_seed"`    // Seed payload, empty disables fuzz mode
	Iterations  int           `json:"iterations"`   // Mutations in fuzz mode
	Wordlist    string        `json:"wordlist"`     // Wordlist path, empty disables wordlist mode
	Sleep       time.Duration `json:"sleep"`        // Observation window after each launch
	KeyDir      string        `json:"key_dir"`      // Directory holding adbkey and adbkey.pub

	// Device
	Serial      string        `json:"serial"`
	ADBPath     string        `json:"adb_path"`
	AuthTimeout time.Duration `json:"auth_timeout"`
	KeepServer  bool          `json:"keep_adb_server"` // never restart a running adb server

	// Mutation engine
	Engine        string `json:"engine"`
	EngineSeed    int64  `json:"engine_seed"`
	HasEngineSeed bool   `json:"has_engine_seed"`

	// Crash detection and metrics
	DetectCrashes bool   `json:"detect_crashes"`
	CrashDir      string `json:"crash_dir"`
	MetricsAddr   string `json:"metrics_addr"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Target:      payload.DefaultTarget,
		Iterations:  1000,
		Sleep:       3 * time.Second,
		KeyDir:      mobile.DefaultKeyDir,
		ADBPath:     "adb",
		AuthTimeout: mobile.DefaultAuthTimeout,
		Engine:      strategies.EngineAuto,
		CrashDir:    "./crashes",
	}
}

// Validate checks the configuration before any device work starts
func (c *Config) Validate() error {
	if c.PackageName == "" {
		return errors.New("package name is required")
	}
	if _, err := payload.ParseTemplate(c.Target); err != nil {
		return err
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative: %d", c.Iterations)
	}
	if c.Sleep < 0 {
		return fmt.Errorf("sleep must not be negative: %v", c.Sleep)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("auth timeout must be positive: %v", c.AuthTimeout)
	}
	switch c.Engine {
	case "", strategies.EngineAuto, strategies.EngineRadamsa, strategies.EngineBuiltin:
	default:
		return fmt.Errorf("unsupported mutation engine: %s", c.Engine)
	}
	if c.DetectCrashes && c.CrashDir == "" {
		return errors.New("crash directory is required when crash detection is enabled")
	}
	return nil
}

// RunStats summarises a finished run
type RunStats struct {
	RunID       string        `json:"run_id"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	WordlistRun int           `json:"wordlist_dispatched"`
	FuzzRun     int           `json:"fuzz_dispatched"`
	Dispatched  int64         `json:"dispatched"`
	Crashes     int64         `json:"crashes"`
}
