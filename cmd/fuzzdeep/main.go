/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for FuzzDeep. The root command runs the deep-link fuzzer;
subcommands discover deep links in a manifest, generate adb keys and print the version.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kleascm/fuzzdeep/cmd/fuzzdeep/commands"
	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fuzzdeep",
		Short: "FuzzDeep - Android deep-link fuzzer",
		Long: `FuzzDeep sends crafted deep links to an Android app over adb. Payloads come from a
wordlist, from a mutation engine fed with a seed, or both (wordlist first). Each payload is
launched as a VIEW intent, observed for the configured time and followed by a force-stop.`,
		Version:       commands.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          commands.RunFuzz,
	}

	// Persistent flags
	rootCmd.PersistentFlags().String("config", "", "Configuration file path")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "custom", "Log format (text, json, custom)")
	rootCmd.PersistentFlags().String("log-dir", "", "Log output directory (console only when empty)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))

	// Fuzzing flags
	defaults := core.DefaultConfig()
	flags := rootCmd.Flags()
	flags.StringP("package", "p", "", "Android package name, force-stopped after every payload")
	flags.StringP("target", "t", payload.DefaultTarget, "Deep link target. Use FUZZ to mark the payload position")
	flags.StringP("fuzz", "f", "", "Fuzz mode seed payload. Runs after the wordlist when both are given")
	flags.IntP("iterations", "i", defaults.Iterations, "Number of mutations in fuzz mode")
	flags.StringP("wordlist", "w", "", "Wordlist mode file, one payload per line")
	flags.IntP("sleep", "s", int(defaults.Sleep/time.Second), "Seconds to wait between launch and force-stop")
	flags.StringP("keys", "k", mobile.DefaultKeyDir, "Directory containing adbkey and adbkey.pub")

	flags.String("serial", "", "Device serial, or host:port for a TCP device")
	flags.String("adb", defaults.ADBPath, "Path to the adb binary")
	flags.Duration("auth-timeout", defaults.AuthTimeout, "Timeout for the device authorization handshake")
	flags.Bool("keep-adb-server", false, "Do not restart a running adb server to load the key from --keys")
	flags.String("engine", defaults.Engine, "Mutation engine (auto, radamsa, builtin)")
	flags.Int64("engine-seed", 0, "Random seed for the mutation engine")
	flags.Bool("detect-crashes", false, "Scan logcat for crashes after every payload")
	flags.String("crash-dir", defaults.CrashDir, "Directory for crash reports")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	flags.String("summary-dir", "", "Write a JSON run summary to this directory")

	// Bind flags to viper
	viper.BindPFlag("package", flags.Lookup("package"))
	viper.BindPFlag("target", flags.Lookup("target"))
	viper.BindPFlag("fuzz", flags.Lookup("fuzz"))
	viper.BindPFlag("iterations", flags.Lookup("iterations"))
	viper.BindPFlag("wordlist", flags.Lookup("wordlist"))
	viper.BindPFlag("sleep", flags.Lookup("sleep"))
	viper.BindPFlag("keys", flags.Lookup("keys"))
	viper.BindPFlag("serial", flags.Lookup("serial"))
	viper.BindPFlag("adb", flags.Lookup("adb"))
	viper.BindPFlag("auth_timeout", flags.Lookup("auth-timeout"))
	viper.BindPFlag("keep_adb_server", flags.Lookup("keep-adb-server"))
	viper.BindPFlag("engine", flags.Lookup("engine"))
	viper.BindPFlag("engine_seed", flags.Lookup("engine-seed"))
	viper.BindPFlag("detect_crashes", flags.Lookup("detect-crashes"))
	viper.BindPFlag("crash_dir", flags.Lookup("crash-dir"))
	viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	viper.BindPFlag("summary_dir", flags.Lookup("summary-dir"))

	rootCmd.AddCommand(commands.NewDiscoverCommand())
	rootCmd.AddCommand(commands.NewKeygenCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCode(err))
	}
}
