package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	userEmail    string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := secStore.AddUser(args[0], userEmail, userPassword)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		color.Green("User %s created (%s)", user.Username, user.ID)
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username> <password>",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := secStore.UserByUsername(args[0])
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("unknown user %q", args[0])
		}
		if err := secStore.SetPassword(user, args[1]); err != nil {
			return fmt.Errorf("failed to set password: %w", err)
		}
		color.Green("Password updated for %s", user.Username)
		return nil
	},
}

var userActivateCmd = &cobra.Command{
	Use:   "activate <username>",
	Short: "Activate a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  setActive(true),
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <username>",
	Short: "Deactivate a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  setActive(false),
}

func setActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		user, err := secStore.UserByUsername(args[0])
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("unknown user %q", args[0])
		}
		if err := secStore.SetActive(user, active); err != nil {
			return err
		}
		if active {
			color.Green("User %s activated", user.Username)
		} else {
			color.Yellow("User %s deactivated", user.Username)
		}
		return nil
	}
}

var userRolesCmd = &cobra.Command{
	Use:   "roles <username> [role...]",
	Short: "Show or replace a user's roles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := secStore.UserByUsername(args[0])
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("unknown user %q", args[0])
		}

		if len(args) == 1 {
			if len(user.Roles) == 0 {
				fmt.Println("(no roles)")
				return nil
			}
			for _, role := range user.Roles {
				fmt.Printf("%s\tpermissions=%s\tpaths=%s\n",
					role.Name,
					strings.Join(role.Permissions, ","),
					strings.Join(role.AllowedPaths, ","))
			}
			return nil
		}

		if err := secStore.SetUserRoles(user, args[1:]); err != nil {
			return err
		}
		color.Green("Roles updated for %s", user.Username)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userActivateCmd)
	userCmd.AddCommand(userDeactivateCmd)
	userCmd.AddCommand(userRolesCmd)
	rootCmd.AddCommand(userCmd)
}
