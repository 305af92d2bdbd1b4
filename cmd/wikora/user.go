package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage user credentials",
	GroupID: "admin",
}

var (
	userDisplayName string
	userPassword    string
	userAdmin       bool
)

// promptPassword reads a password without echo, asking twice.
func promptPassword() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("standard input is not a terminal; use --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a user (the first one bootstraps the wiki)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			var err error
			if password, err = promptPassword(); err != nil {
				return err
			}
		}
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		user, err := svc.AddUser(cmd.Context(), args[0], userDisplayName, password, userAdmin)
		if err != nil {
			return err
		}
		fmt.Printf("added user %s\n", user.Name)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()
		return svc.Store().DeleteUser(args[0])
	},
}

var userEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Update a user's display name, password or admin flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		var admin *bool
		if cmd.Flags().Changed("admin") {
			admin = &userAdmin
		}
		password := userPassword
		if cmd.Flags().Changed("prompt-password") {
			if password, err = promptPassword(); err != nil {
				return err
			}
		}
		_, err = svc.Store().EditUser(args[0], userDisplayName, password, admin)
		return err
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		users, err := svc.Store().Users()
		if err != nil {
			return err
		}
		for _, u := range users {
			marker := " "
			if u.Admin {
				marker = "*"
			}
			fmt.Printf("%s %-20s %s\n", marker, u.Name, u.DisplayName)
		}
		return nil
	},
}

var userPromptPassword bool

func init() {
	userAddCmd.Flags().StringVar(&userDisplayName, "display", "", "display name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "password (prompted when omitted)")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant administrator privileges")
	userEditCmd.Flags().StringVar(&userDisplayName, "display", "", "new display name")
	userEditCmd.Flags().StringVar(&userPassword, "password", "", "new password")
	userEditCmd.Flags().BoolVar(&userPromptPassword, "prompt-password", false, "prompt for a new password")
	userEditCmd.Flags().BoolVar(&userAdmin, "admin", false, "set the administrator flag")

	userCmd.AddCommand(userAddCmd, userDeleteCmd, userEditCmd, userListCmd)
}
