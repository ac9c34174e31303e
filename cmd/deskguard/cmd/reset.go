package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Desk-Guard/Deskguard/internal/config"
)

var (
	resetIncludeAudit bool
	resetForce        bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset Deskguard to a clean state",
	Long: `Reset Deskguard by removing persistent state files.

By default, only the state snapshot (and its backup) is removed. This
clears all templates and versions created while running on the memory
backend. The sqlite backend and the audit trail are untouched.

On next start, Deskguard boots with a clean state — seeded from your
seed_file if configured, or completely empty.

Optional flags:
  --include-audit   Also remove audit log files
  --force           Skip confirmation prompt

Examples:
  # Reset state only (interactive confirmation)
  deskguard reset

  # Reset everything without prompting
  deskguard reset --include-audit --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetIncludeAudit, "include-audit", false, "Also remove audit log files")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	type target struct {
		path string
		desc string
	}
	targets := []target{
		{cfg.Storage.StatePath, "state file"},
		{cfg.Storage.StatePath + ".bak", "state backup"},
	}

	if resetIncludeAudit && cfg.Audit.Dir != "" {
		matches, _ := filepath.Glob(filepath.Join(cfg.Audit.Dir, "audit-*.log"))
		for _, m := range matches {
			targets = append(targets, target{m, "audit log"})
		}
	}

	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}
	if len(existing) == 0 {
		fmt.Println("nothing to remove; already clean")
		return nil
	}

	fmt.Println("will remove:")
	for _, t := range existing {
		fmt.Printf("  %s (%s)\n", t.path, t.desc)
	}

	if !resetForce {
		fmt.Print("continue? [y/N]: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	for _, t := range existing {
		if err := os.Remove(t.path); err != nil {
			return fmt.Errorf("remove %s: %w", t.path, err)
		}
		fmt.Printf("removed %s\n", t.path)
	}
	return nil
}
