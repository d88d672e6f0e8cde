/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: discover.go
Description: Discover command. Reads a decoded AndroidManifest.xml and prints one target template
per deep link the app declares, ready to pass to --target.
*/

package commands

import (
	"fmt"
	"os"

	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/spf13/cobra"
)

// NewDiscoverCommand creates the discover command
func NewDiscoverCommand() *cobra.Command {
	var manifestPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List deep-link targets declared in an AndroidManifest.xml",
		Long: `Parse a decoded AndroidManifest.xml (for example from apktool) and print a FUZZ target
template for every VIEW intent filter of an activity or activity alias.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(manifestPath)
			if err != nil {
				return &core.RunError{Kind: core.KindConfig, Err: fmt.Errorf("failed to open manifest: %w", err)}
			}
			defer f.Close()

			analysis, err := mobile.AnalyzeManifest(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(out, "Package: %s\n", analysis.PackageName)
				for _, link := range analysis.DeepLinks {
					fmt.Fprintf(out, "  %s -> %s\n", link.Activity, link.Template())
				}
				fmt.Fprintln(out)
			}
			for _, template := range analysis.Templates() {
				fmt.Fprintln(out, template)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to a decoded AndroidManifest.xml (required)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the package and the activity behind each link")
	cmd.MarkFlagRequired("manifest")
	return cmd
}
