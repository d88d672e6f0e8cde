/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fuzz.go
Description: Fuzz driver. Feeds a fixed seed to the mutation engine for a set number of
iterations, decodes each mutation as text and dispatches it through the target template.
*/

package drivers

import (
	"context"
	"fmt"

	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/kleascm/fuzzdeep/pkg/strategies"
	"github.com/sirupsen/logrus"
)

// FuzzDriver runs the mutation loop
type FuzzDriver struct {
	target     string
	seed       string
	iterations int
	engine     strategies.Engine
	dispatcher Dispatcher
	observer   MutationObserver
	logger     *logrus.Logger
}

// FuzzOptions configures a FuzzDriver
type FuzzOptions struct {
	Target     string
	Seed       string
	Iterations int
	Observer   MutationObserver // optional
	Logger     *logrus.Logger   // optional
}

// NewFuzzDriver creates a fuzz driver
func NewFuzzDriver(engine strategies.Engine, dispatcher Dispatcher, opts FuzzOptions) *FuzzDriver {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &FuzzDriver{
		target:     opts.Target,
		seed:       opts.Seed,
		iterations: opts.Iterations,
		engine:     engine,
		dispatcher: dispatcher,
		observer:   observer,
		logger:     loggerOrDefault(opts.Logger),
	}
}

// Run performs the configured number of iterations and returns the number of requests sent.
// The template is checked before the engine is touched.
func (f *FuzzDriver) Run(ctx context.Context) (int, error) {
	tmpl, err := payload.ParseTemplate(f.target)
	if err != nil {
		return 0, err
	}

	seed := []byte(f.seed)
	f.logger.WithFields(logrus.Fields{
		"engine":     f.engine.Name(),
		"seed":       f.seed,
		"iterations": f.iterations,
		"target":     tmpl.String(),
	}).Info("Starting fuzz mode")

	sent := 0
	for i := 0; i < f.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		mutated, err := f.engine.Fuzz(ctx, seed)
		if err != nil {
			return sent, fmt.Errorf("mutation %d failed: %w", i+1, err)
		}
		f.observer.OnMutation(f.engine.Name())

		request := tmpl.Substitute(payload.DecodeLossy(mutated))
		if err := f.dispatcher.Dispatch(ctx, ModeFuzz, request); err != nil {
			return sent, err
		}
		sent++
	}

	f.logger.WithField("dispatched", sent).Info("Fuzz mode finished")
	return sent, nil
}
