/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fuzz.go
Description: Fuzz command implementation. Loads configuration, sets up logging and signal
handling, runs the orchestrator and prints the run summary.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/kleascm/fuzzdeep/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunFuzz executes a fuzzing run with the configured modes
func RunFuzz(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return &core.RunError{Kind: core.KindConfig, Err: err}
	}
	logger, err := SetupLogging()
	if err != nil {
		return &core.RunError{Kind: core.KindConfig, Err: err}
	}
	defer logger.Close()

	config := createRunConfig()

	// Interrupts cancel the run; the dispatcher still force-stops the app and the session is closed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := core.NewOrchestrator(config, logger)
	stats, err := orchestrator.Run(ctx)
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "\n[!] Interrupt received, run stopped")
	}
	if stats != nil && stats.Dispatched > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %d payloads dispatched (%d wordlist, %d fuzz), %d crashes in %v\n",
			stats.RunID, stats.Dispatched, stats.WordlistRun, stats.FuzzRun, stats.Crashes, stats.Duration.Round(time.Millisecond))
	}
	if dir := viper.GetString("summary_dir"); dir != "" && stats != nil {
		path, werr := utils.WriteRunSummary(dir, stats.RunID, Version, stats)
		if werr != nil {
			logger.GetLogger().WithError(werr).Warn("Failed to write run summary")
		} else {
			logger.GetLogger().WithField("path", path).Info("Run summary written")
		}
	}
	return err
}
