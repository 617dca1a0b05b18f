package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/palisadehq/palisade/internal/cachectl"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Manage secured path patterns",
}

var pathListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secured path patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := secStore.SecuredPaths()
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("(no secured paths)")
			return nil
		}
		for _, pattern := range paths {
			fmt.Println(pattern)
		}
		return nil
	},
}

var pathSetCmd = &cobra.Command{
	Use:   "set <pattern>...",
	Short: "Replace the secured path list",
	Long: `Replace the secured path list wholesale.

Patterns use shell-style wildcards (* and ?) and may be scoped to one
HTTP method with a prefix, e.g. "POST /admin*". When the cache is
enabled, go through the running model or run "cache warm" afterwards so
the snapshot is regenerated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := modelForWrites().SetSecuredPaths(args); err != nil {
			return err
		}
		color.Green("Secured paths updated (%d patterns)", len(args))
		return nil
	},
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Manage registered permissions",
}

var permissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered permission codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		codes, err := secStore.Permissions()
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			fmt.Println("(no permissions)")
			return nil
		}
		for _, code := range codes {
			fmt.Println(code)
		}
		return nil
	},
}

var permissionAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Register a permission code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := modelForWrites().AddPermission(args[0]); err != nil {
			return err
		}
		color.Green("Permission %s registered", args[0])
		return nil
	},
}

var permissionRemoveCmd = &cobra.Command{
	Use:   "remove <code>",
	Short: "Unregister a permission code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := modelForWrites().DeletePermission(args[0]); err != nil {
			return err
		}
		color.Yellow("Permission %s removed", args[0])
		return nil
	},
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage roles",
}

var roleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := &secmodel.Role{Name: args[0]}
		if err := secStore.SaveRole(role); err != nil {
			return err
		}
		color.Green("Role %s created (%s)", role.Name, role.ID)
		return nil
	},
}

var roleGrantCmd = &cobra.Command{
	Use:   "grant <name> <permission>...",
	Short: "Replace a role's permission grants",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := secStore.RoleByName(args[0])
		if err != nil {
			return err
		}
		if role == nil {
			return fmt.Errorf("unknown role %q", args[0])
		}
		if err := secStore.SetRolePermissions(role, args[1:]); err != nil {
			return err
		}
		color.Green("Permissions updated for role %s", role.Name)
		return nil
	},
}

var rolePathsCmd = &cobra.Command{
	Use:   "paths <name> <pattern>...",
	Short: "Replace a role's allowed path patterns",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := secStore.RoleByName(args[0])
		if err != nil {
			return err
		}
		if role == nil {
			return fmt.Errorf("unknown role %q", args[0])
		}
		if err := secStore.SetRolePaths(role, args[1:]); err != nil {
			return err
		}
		color.Green("Allowed paths updated for role %s", role.Name)
		return nil
	},
}

// modelForWrites returns the model mutations should go through: the cache
// wrapper when enabled, so the snapshot is invalidated alongside the write.
func modelForWrites() secmodel.SecurityModel {
	if cfg.Get(cachectl.KeyDefaultModel, cachectl.FallbackModel) == cachectl.SentinelCache {
		return secmodel.NewCache(secStore, snapshotPath)
	}
	return secStore
}

func init() {
	pathCmd.AddCommand(pathListCmd)
	pathCmd.AddCommand(pathSetCmd)
	rootCmd.AddCommand(pathCmd)

	permissionCmd.AddCommand(permissionListCmd)
	permissionCmd.AddCommand(permissionAddCmd)
	permissionCmd.AddCommand(permissionRemoveCmd)
	rootCmd.AddCommand(permissionCmd)

	roleCmd.AddCommand(roleAddCmd)
	roleCmd.AddCommand(roleGrantCmd)
	roleCmd.AddCommand(rolePathsCmd)
	rootCmd.AddCommand(roleCmd)
}
