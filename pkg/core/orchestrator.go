/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator.go
Description: Run orchestration. Validates the configuration, loads the adb keys, opens the device
session and runs the wordlist driver followed by the fuzz driver. The session is released on
every exit path, including failures and interrupts.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/fuzzdeep/pkg/dispatch"
	"github.com/kleascm/fuzzdeep/pkg/drivers"
	"github.com/kleascm/fuzzdeep/pkg/logging"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/kleascm/fuzzdeep/pkg/monitoring"
	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/kleascm/fuzzdeep/pkg/strategies"
	"github.com/sirupsen/logrus"
)

// DeviceSession is the device handle owned by a run
type DeviceSession interface {
	dispatch.Device
	mobile.LogSource
	Close() error
}

// SignerLoader loads the adb key pair from a directory
type SignerLoader func(dir string) (*mobile.Signer, error)

// Connector opens a device session
type Connector func(ctx context.Context, signer *mobile.Signer, opts mobile.ConnectOptions) (DeviceSession, error)

// EngineFactory builds the mutation engine for fuzz mode
type EngineFactory func(config strategies.EngineConfig) (strategies.Engine, error)

// Orchestrator drives one run from configuration to teardown
type Orchestrator struct {
	config  *Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	runID   string

	loadSigner SignerLoader
	connect    Connector
	newEngine  EngineFactory
	sleep      dispatch.Sleeper
}

// NewOrchestrator creates an orchestrator with the real key loader, adb connector and engine
func NewOrchestrator(config *Config, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		config:     config,
		logger:     logger,
		metrics:    monitoring.NewMetrics(),
		runID:      uuid.New().String(),
		loadSigner: mobile.LoadSigner,
		connect:    connectADB,
		newEngine:  strategies.NewEngine,
		sleep:      dispatch.Sleep,
	}
}

func connectADB(ctx context.Context, signer *mobile.Signer, opts mobile.ConnectOptions) (DeviceSession, error) {
	session, err := mobile.Connect(ctx, signer, opts)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SetSignerLoader replaces the key loader
func (o *Orchestrator) SetSignerLoader(loader SignerLoader) { o.loadSigner = loader }

// SetConnector replaces the device connector
func (o *Orchestrator) SetConnector(connector Connector) { o.connect = connector }

// SetEngineFactory replaces the mutation engine factory
func (o *Orchestrator) SetEngineFactory(factory EngineFactory) { o.newEngine = factory }

// SetSleeper replaces the wait between launch and force-stop
func (o *Orchestrator) SetSleeper(sleep dispatch.Sleeper) { o.sleep = sleep }

// Metrics returns the run's metrics
func (o *Orchestrator) Metrics() *monitoring.Metrics { return o.metrics }

// RunID returns the identifier attached to logs and crash reports
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes the configured modes. Errors are *RunError values.
func (o *Orchestrator) Run(ctx context.Context) (*RunStats, error) {
	log := o.logger.GetLogger().WithField("run_id", o.runID)
	stats := &RunStats{RunID: o.runID, StartTime: time.Now()}

	if err := o.config.Validate(); err != nil {
		return stats, newRunError(KindConfig, fmt.Errorf("invalid configuration: %w", err))
	}

	signer, err := o.loadSigner(o.config.KeyDir)
	if err != nil {
		return stats, newRunError(KindConfig, err)
	}

	session, err := o.connect(ctx, signer, mobile.ConnectOptions{
		ADBPath:     o.config.ADBPath,
		Serial:      o.config.Serial,
		AuthTimeout: o.config.AuthTimeout,
		KeepServer:  o.config.KeepServer,
		Logger:      o.logger.GetLogger(),
	})
	if err != nil {
		return stats, newRunError(KindConnection, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close device session")
		}
	}()

	if o.config.MetricsAddr != "" {
		serveCtx, stopServing := context.WithCancel(ctx)
		defer stopServing()
		if _, _, err := o.metrics.Serve(serveCtx, o.config.MetricsAddr, o.logger.GetLogger()); err != nil {
			return stats, newRunError(KindConfig, fmt.Errorf("failed to serve metrics: %w", err))
		}
	}

	reporter := MultiReporter{o.metrics, NewLoggerReporter(o.logger.GetLogger())}
	opts := dispatch.Options{
		PackageName: o.config.PackageName,
		Wait:        o.config.Sleep,
		Logger:      o.logger,
		Reporter:    reporter,
		Sleep:       o.sleep,
	}
	if o.config.DetectCrashes {
		collector := mobile.NewCrashCollector(session, o.config.PackageName, o.config.CrashDir)
		collector.SetRunID(o.runID)
		opts.Crashes = collector
	}
	dispatcher := dispatch.NewDispatcher(session, opts)

	defer func() {
		stats.Duration = time.Since(stats.StartTime)
		stats.Dispatched = dispatcher.Dispatched()
		stats.Crashes = dispatcher.Crashes()
		o.logger.LogStats(stats.Dispatched, stats.Crashes, map[string]interface{}{"run_id": o.runID})
	}()

	if o.config.Wordlist == "" && o.config.FuzzSeed == "" {
		log.Warn("Neither a wordlist nor a fuzz seed was given, nothing to dispatch")
		return stats, nil
	}

	if o.config.Wordlist != "" {
		driver := drivers.NewWordlistDriver(o.config.Wordlist, o.config.Target, dispatcher, o.logger.GetLogger())
		stats.WordlistRun, err = driver.Run(ctx)
		if err != nil {
			return stats, classify(err)
		}
	}

	if o.config.FuzzSeed != "" {
		engine, err := o.newEngine(strategies.EngineConfig{
			Kind:    o.config.Engine,
			Seed:    o.config.EngineSeed,
			HasSeed: o.config.HasEngineSeed,
		})
		if err != nil {
			return stats, newRunError(KindConfig, err)
		}
		driver := drivers.NewFuzzDriver(engine, dispatcher, drivers.FuzzOptions{
			Target:     o.config.Target,
			Seed:       o.config.FuzzSeed,
			Iterations: o.config.Iterations,
			Observer:   reporter,
			Logger:     o.logger.GetLogger(),
		})
		stats.FuzzRun, err = driver.Run(ctx)
		if err != nil {
			return stats, classify(err)
		}
	}

	log.WithFields(logrus.Fields{
		"wordlist": stats.WordlistRun,
		"fuzz":     stats.FuzzRun,
	}).Info("Run complete")
	return stats, nil
}

func classify(err error) error {
	if errors.Is(err, payload.ErrMissingMarker) || errors.Is(err, payload.ErrMultipleMarkers) {
		return newRunError(KindConfig, err)
	}
	return newRunError(KindRuntime, err)
}
