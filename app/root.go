// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/asiradnan/saml/internal/config"
)

var (
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "samlfed",
		Short: "samlfed is a SAML federation demo node",
		Long: `samlfed runs one node of a small SAML federation. Depending on the
configured role it acts as the identity provider issuing assertions, or as a
service provider consuming them and provisioning local users.`,
		Args: cobra.OnlyValidArgs,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
