package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cuemby/burrow/pkg/query"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var resourcesCmd = &cobra.Command{
	Use:     "resources",
	Aliases: []string{"resource", "res"},
	Short:   "Inspect and manage resources",
}

var resourcesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the resources a user can read",
	Args:    cobra.NoArgs,
	RunE:    runResourcesList,
}

var resourcesShowCmd = &cobra.Command{
	Use:   "show ID|EXTERNAL-ID",
	Short: "Show one resource",
	Long: `Show one resource, addressed by numeric id or by external id.

Examples:
  burrow resources show 12 --user 1
  burrow resources show /lab/endpoint/tcp-endpoint/db --user 1 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runResourcesShow,
}

var resourcesDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a resource from a properties file",
	Long: `Deploy a resource described by a YAML properties file. The "type"
property selects the provider; "name" names the resource.

Examples:
  burrow resources deploy -f db.yaml --group 1 --host 1 --user 1`,
	Args: cobra.NoArgs,
	RunE: runResourcesDeploy,
}

var resourcesRenameCmd = &cobra.Command{
	Use:   "rename ID NEW-NAME",
	Short: "Rename a resource, optionally moving it to another group",
	Args:  cobra.ExactArgs(2),
	RunE:  runResourcesRename,
}

func init() {
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesShowCmd)
	resourcesCmd.AddCommand(resourcesDeployCmd)
	resourcesCmd.AddCommand(resourcesRenameCmd)

	resourcesCmd.PersistentFlags().Uint64("user", 0, "User the request is made as (required)")
	_ = resourcesCmd.MarkPersistentFlagRequired("user")

	resourcesListCmd.Flags().Uint64("group", 0, "Only list resources of this resource group")
	for _, c := range []*cobra.Command{resourcesListCmd, resourcesShowCmd} {
		c.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	}

	resourcesDeployCmd.Flags().StringP("file", "f", "", "Properties file (required)")
	resourcesDeployCmd.Flags().Uint64("group", 0, "Target resource group (required)")
	resourcesDeployCmd.Flags().Uint64("host", 0, "Target host (required)")
	_ = resourcesDeployCmd.MarkFlagRequired("file")
	_ = resourcesDeployCmd.MarkFlagRequired("group")
	_ = resourcesDeployCmd.MarkFlagRequired("host")

	resourcesRenameCmd.Flags().Uint64("group", 0, "Move the resource to this resource group")
}

func runResourcesList(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetUint64("user")
	groupID, _ := cmd.Flags().GetUint64("group")
	output, _ := cmd.Flags().GetString("output")

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Shutdown(cmd.Context())

	var overviews []*query.ResourceOverview
	if groupID != 0 {
		overviews, err = mgr.ListGroupResources(cmd.Context(), userID, groupID)
	} else {
		overviews, err = mgr.ListResources(cmd.Context(), userID)
	}
	if err != nil {
		return err
	}
	return printOverviews(output, overviews)
}

func runResourcesShow(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetUint64("user")
	output, _ := cmd.Flags().GetString("output")

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Shutdown(cmd.Context())

	var overview *query.ResourceOverview
	if strings.HasPrefix(args[0], "/") {
		overview, err = mgr.GetResourceByExternalID(cmd.Context(), userID, args[0])
	} else {
		id, perr := strconv.ParseUint(args[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid resource id %q", args[0])
		}
		overview, err = mgr.GetResource(cmd.Context(), userID, id)
	}
	if err != nil {
		return err
	}
	return printOverviews(output, []*query.ResourceOverview{overview})
}

func runResourcesDeploy(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetUint64("user")
	groupID, _ := cmd.Flags().GetUint64("group")
	hostID, _ := cmd.Flags().GetUint64("host")
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var properties map[string]any
	if err := yaml.Unmarshal(data, &properties); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	// Shutdown waits for the deployment to finish
	defer mgr.Shutdown(cmd.Context())

	ref, err := mgr.DeployResource(cmd.Context(), userID, groupID, hostID, properties)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deploying %s (id %d) on %s\n", ref.ExternalID(), ref.ID, ref.HostName)
	return nil
}

func runResourcesRename(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetUint64("user")
	groupID, _ := cmd.Flags().GetUint64("group")

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid resource id %q", args[0])
	}

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer mgr.Shutdown(cmd.Context())

	ref, err := mgr.RenameResource(cmd.Context(), userID, id, args[1], groupID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Renamed to %s\n", ref.ExternalID())
	return nil
}

// overviewView is the printable form of a resource overview
type overviewView struct {
	ID               uint64 `json:"id" yaml:"id"`
	ExternalID       string `json:"external_id" yaml:"external_id"`
	Host             string `json:"host" yaml:"host"`
	Health           string `json:"health" yaml:"health"`
	OperationalState string `json:"operational_state" yaml:"operational_state"`
	StateContext     string `json:"state_context,omitempty" yaml:"state_context,omitempty"`
}

func printOverviews(format string, overviews []*query.ResourceOverview) error {
	views := make([]overviewView, 0, len(overviews))
	for _, o := range overviews {
		views = append(views, overviewView{
			ID:               o.Reference.ID,
			ExternalID:       o.ExternalID,
			Host:             o.Reference.HostName,
			Health:           o.HealthStatus.String(),
			OperationalState: string(o.OperationalState),
			StateContext:     o.StateContext,
		})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(views)
	case "table":
		if len(views) == 0 {
			fmt.Println("No resources found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEXTERNAL ID\tHOST\tHEALTH\tSTATE")
		for _, v := range views {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.ExternalID, v.Host, v.Health, v.OperationalState)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
