package main

import (
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/manager"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create hosts, groups, roles and assignments from a manifest",
	Long: `Create the inventory declared in a YAML manifest. Entries that
already exist by name are left alone, so a manifest can be applied
repeatedly.

Examples:
  burrow seed -f inventory.yaml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringP("file", "f", "", "Manifest file (required)")
	_ = seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	manifest, err := manager.LoadManifest(f)
	if err != nil {
		return err
	}

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Shutdown(cmd.Context())

	report, err := mgr.Seed(cmd.Context(), manifest)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Seeded %s\n", filename)
	fmt.Printf("  Hosts:           %d (+%d storages)\n", report.Hosts, report.Storages)
	fmt.Printf("  Resource groups: %d\n", report.ResourceGroups)
	fmt.Printf("  Roles:           %d\n", report.Roles)
	fmt.Printf("  User groups:     %d\n", report.UserGroups)
	fmt.Printf("  Assignments:     %d\n", report.Assignments)
	return nil
}
