// Package cmd provides the CLI commands for Deskguard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Desk-Guard/Deskguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deskguard",
	Short: "Deskguard - helpdesk policy lifecycle engine",
	Long: `Deskguard manages versioned policy templates for helpdesk domains:
chat rules, SLA targets, and remote session constraints.

Templates are scoped (global, per queue, or per ticket type) and carry
numbered config versions with a draft/published/archived lifecycle.
Every mutation is validated against the domain schema and recorded in
an append-only audit trail. Draft configs can be dry-run against live
sample data before publishing.

Quick start:
  1. Create a config file: deskguard.yaml
  2. Run: deskguard start

Configuration:
  Config is loaded from deskguard.yaml in the current directory,
  $HOME/.deskguard/, or /etc/deskguard/.

  Environment variables can override config values with the DESKGUARD_ prefix.
  Example: DESKGUARD_SERVER_HTTP_ADDR=127.0.0.1:9090

Commands:
  start       Start the policy engine server
  validate    Validate a policy config document against a domain schema
  reset       Reset to clean state (remove state.json)
  hash-key    Generate a hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./deskguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
