package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <domain> <config.json>",
	Short: "Validate a policy config document against a domain schema",
	Long: `Validate a JSON config document against a domain schema without
touching the server. All field errors are reported at once.

Domains: sla, chat, remote_session

Example:
  deskguard validate chat ./chat-policy.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := policy.Domain(args[0])
		if !policy.IsValidDomain(domain) {
			return fmt.Errorf("unknown domain %q: must be one of sla, chat, remote_session", args[0])
		}

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		if _, fieldErrs := schema.ValidateJSON(domain, data); len(fieldErrs) > 0 {
			fmt.Fprintf(os.Stderr, "invalid %s config (%d errors):\n", domain, len(fieldErrs))
			for _, fe := range fieldErrs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", fe.Field, fe.Reason)
			}
			os.Exit(1)
		}

		fmt.Printf("%s: valid %s config\n", args[1], domain)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
