package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:     "lock",
	Short:   "Inspect and clear edit locks",
	GroupID: "admin",
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List edit locks (expired ones included)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		locks, err := svc.Store().Locks()
		if err != nil {
			return err
		}
		now := svc.Store().IDs().Now()
		for _, l := range locks {
			state := "live"
			if l.Expired(now) {
				state = "expired"
			}
			fmt.Printf("%s %-8s %s %s expires %s\n", l.Token, state, l.Target, l.User, l.Expire)
		}
		return nil
	},
}

var lockDeleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Remove a lock by token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()
		return svc.DropLock(cmd.Context(), args[0])
	},
}

func init() {
	lockCmd.AddCommand(lockListCmd, lockDeleteCmd)
}
