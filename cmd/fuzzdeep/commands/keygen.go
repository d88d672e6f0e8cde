/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: keygen.go
Description: Keygen command. Creates an adb key pair in the format the device and the adb server
expect, so FuzzDeep can authorize against a device that has never seen this host.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/fuzzdeep/pkg/core"
	"github.com/kleascm/fuzzdeep/pkg/mobile"
	"github.com/spf13/cobra"
)

// NewKeygenCommand creates the keygen command
func NewKeygenCommand() *cobra.Command {
	var keyDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an adb key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := mobile.GenerateKeyPair(keyDir)
			if err != nil {
				return &core.RunError{Kind: core.KindConfig, Err: err}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Private key: %s\n", signer.PrivateKeyPath)
			fmt.Fprintf(out, "Public key:  %s\n", signer.PublicKeyPath)
			fmt.Fprintf(out, "Fingerprint: %s\n", signer.Fingerprint())
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyDir, "keys", "k", mobile.DefaultKeyDir, "Directory to write adbkey and adbkey.pub to")
	return cmd
}
