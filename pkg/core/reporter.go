/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Telemetry reporters for a run. A logging reporter traces dispatch events, and a
multi reporter fans every event out to several sinks such as the Prometheus metrics.
*/

package core

import (
	"time"

	"github.com/kleascm/fuzzdeep/pkg/dispatch"
	"github.com/sirupsen/logrus"
)

// LoggerReporter logs dispatch events at debug level and device failures as warnings
type LoggerReporter struct {
	logger *logrus.Logger
}

// NewLoggerReporter creates a new LoggerReporter
func NewLoggerReporter(logger *logrus.Logger) *LoggerReporter {
	return &LoggerReporter{logger: logger}
}

// OnDispatch logs the launch latency
func (r *LoggerReporter) OnDispatch(mode string, launch time.Duration) {
	r.logger.WithFields(logrus.Fields{"mode": mode, "launch": launch}).Debug("Payload launched")
}

// OnDeviceError logs a failed device command
func (r *LoggerReporter) OnDeviceError(stage string) {
	r.logger.WithField("stage", stage).Warn("Device command failed")
}

// OnMutation logs one engine call
func (r *LoggerReporter) OnMutation(engine string) {
	r.logger.WithField("engine", engine).Debug("Mutation generated")
}

// OnCrash is a no-op; crashes are already logged by the dispatcher
func (r *LoggerReporter) OnCrash(kind string) {}

// MultiReporter forwards every event to all of its reporters
type MultiReporter []dispatch.Reporter

// OnDispatch forwards to every reporter
func (m MultiReporter) OnDispatch(mode string, launch time.Duration) {
	for _, r := range m {
		r.OnDispatch(mode, launch)
	}
}

// OnDeviceError forwards to every reporter
func (m MultiReporter) OnDeviceError(stage string) {
	for _, r := range m {
		r.OnDeviceError(stage)
	}
}

// OnMutation forwards to every reporter
func (m MultiReporter) OnMutation(engine string) {
	for _, r := range m {
		r.OnMutation(engine)
	}
}

// OnCrash forwards to every reporter
func (m MultiReporter) OnCrash(kind string) {
	for _, r := range m {
		r.OnCrash(kind)
	}
}
