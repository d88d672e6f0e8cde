/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dispatcher.go
Description: Payload dispatcher. Sends one concrete request to the device as a VIEW intent,
logs it, waits the observation window and force-stops the target package so the next
iteration starts from a clean state.
*/

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/logging"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/kleascm/fuzzdeep/pkg/payload"
)

// stopTimeout bounds the force-stop issued after an interrupted wait
const stopTimeout = 10 * time.Second

// Device is the part of a device session the dispatcher needs
type Device interface {
	StartView(ctx context.Context, uri string) error
	ForceStop(ctx context.Context, packageName string) error
}

// CrashCollector inspects the device after each observation window
type CrashCollector interface {
	Prepare(ctx context.Context) error
	Collect(ctx context.Context, payload string) ([]*mobile.CrashReport, error)
	Report(crash *mobile.CrashReport) (string, error)
}

// Reporter receives dispatch telemetry
type Reporter interface {
	OnDispatch(mode string, launch time.Duration)
	OnDeviceError(stage string)
	OnMutation(engine string)
	OnCrash(kind string)
}

// NopReporter discards telemetry
type NopReporter struct{}

func (NopReporter) OnDispatch(string, time.Duration) {}
func (NopReporter) OnDeviceError(string)             {}
func (NopReporter) OnMutation(string)                {}
func (NopReporter) OnCrash(string)                   {}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Dispatcher
type Options struct {
	PackageName string
	Wait        time.Duration
	Logger      *logging.Logger // required
	Reporter    Reporter       // optional
	Crashes     CrashCollector // optional
	Sleep       Sleeper        // optional, defaults to Sleep
}

// Dispatcher sends payloads to one device, one at a time
type Dispatcher struct {
	device Device
	opts   Options

	dispatched int64
	crashes    int64
}

// NewDispatcher creates a dispatcher bound to device
func NewDispatcher(device Device, opts Options) *Dispatcher {
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Dispatcher{device: device, opts: opts}
}

// Dispatch launches request, waits, and force-stops the package.
// The force-stop is issued whenever the launch succeeded, even if the wait was interrupted.
func (d *Dispatcher) Dispatch(ctx context.Context, mode string, request string) error {
	if d.opts.Crashes != nil {
		if err := d.opts.Crashes.Prepare(ctx); err != nil {
			d.opts.Logger.GetLogger().WithError(err).Warn("Failed to clear device log")
		}
	}

	encoded := payload.Encode(request)
	start := time.Now()
	if err := d.device.StartView(ctx, encoded); err != nil {
		d.opts.Reporter.OnDeviceError("launch")
		return fmt.Errorf("launch failed: %w", err)
	}
	d.opts.Reporter.OnDispatch(mode, time.Since(start))
	d.dispatched++

	d.opts.Logger.LogDispatch(request, d.opts.Wait, map[string]interface{}{"mode": mode})

	waitErr := d.opts.Sleep(ctx, d.opts.Wait)
	if waitErr == nil {
		d.collectCrashes(ctx, request)
	}

	stopCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
	}
	if err := d.device.ForceStop(stopCtx, d.opts.PackageName); err != nil {
		d.opts.Reporter.OnDeviceError("force_stop")
		return errors.Join(waitErr, fmt.Errorf("force-stop failed: %w", err))
	}
	return waitErr
}

func (d *Dispatcher) collectCrashes(ctx context.Context, request string) {
	if d.opts.Crashes == nil {
		return
	}
	logger := d.opts.Logger.GetLogger()
	reports, err := d.opts.Crashes.Collect(ctx, request)
	if err != nil {
		logger.WithError(err).Warn("Failed to read device log")
		return
	}
	for _, crash := range reports {
		d.crashes++
		d.opts.Reporter.OnCrash(crash.Type)
		path, err := d.opts.Crashes.Report(crash)
		fields := map[string]interface{}{"message": crash.Message}
		if err != nil {
			fields["report_error"] = err.Error()
		} else {
			fields["report"] = path
		}
		d.opts.Logger.LogCrash(request, crash.Type, fields)
	}
}

// Dispatched returns the number of successful launches
func (d *Dispatcher) Dispatched() int64 {
	return d.dispatched
}

// Crashes returns the number of crashes collected
func (d *Dispatcher) Crashes() int64 {
	return d.crashes
}

// Reporter returns the configured telemetry sink
func (d *Dispatcher) Reporter() Reporter {
	return d.opts.Reporter
}
