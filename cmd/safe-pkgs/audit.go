package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safe-pkgs/safe-pkgs/internal/lockfileaudit"
)

var auditRegistry string

var auditCmd = &cobra.Command{
	Use:   "audit <path>",
	Short: "Audit a lockfile or manifest against the configured policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd, args[0])
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditRegistry, "registry", "", "registry key (npm, cargo, pypi); defaults to the first lockfile-capable registry")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, path string) error {
	a, err := buildApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	registryKey := auditRegistry
	if registryKey == "" {
		key, ok := a.catalog.FirstLockfileKey()
		if !ok {
			return fmt.Errorf("no lockfile-capable registries are configured")
		}
		registryKey = key
	}

	result, err := a.auditor.Audit(cmd.Context(), lockfileaudit.Request{
		Path:         path,
		RegistryKey:  registryKey,
		ContextLabel: "cli-audit",
	})
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
