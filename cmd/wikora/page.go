package main

import (
	"fmt"
	"io"
	"os"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"

	"github.com/wikora/wikora/internal/store"
)

var pageCmd = &cobra.Command{
	Use:     "page",
	Short:   "Create, list and manage pages",
	GroupID: "content",
}

var (
	pageAddUser     string
	pageListDeleted bool
	pageListLimit   int
	pageDeleteHard  bool
	pageRecursive   bool
	pageUndeleteTo  string
	pageCatRev      uint64
	pageCatRender   bool
)

var pageAddCmd = &cobra.Command{
	Use:   "add <path> [file]",
	Short: "Create a page from a file or standard input",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := mustNormalize(args[0])
		if err != nil {
			return err
		}
		var source []byte
		if len(args) == 2 {
			source, err = os.ReadFile(args[1])
		} else {
			source, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		draft, lock, err := svc.CreateDraft(cmd.Context(), path, pageAddUser)
		if err != nil {
			return err
		}
		rev, err := svc.Write(cmd.Context(), draft.PageID, string(source), pageAddUser, false, lock.Token)
		if err != nil {
			// Abandon the draft rather than leaving the path occupied.
			_ = svc.Release(cmd.Context(), draft.PageID, lock.Token, pageAddUser)
			return err
		}
		fmt.Printf("%s %s (revision %d)\n", draft.PageID, path, rev)
		return nil
	},
}

var pageListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List pages under a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := "/"
		if len(args) == 1 {
			prefix = args[0]
		}
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		cursor := ""
		for {
			res, err := svc.Store().List(prefix, cursor, store.Forward, pageListLimit, pageListDeleted)
			if err != nil {
				return err
			}
			for _, item := range res.Items {
				marker := " "
				switch {
				case item.Deleted:
					marker = "D"
				case item.Draft:
					marker = "d"
				}
				fmt.Printf("%s %s %s\n", marker, item.PageID, item.Path)
			}
			if !res.HasMore {
				return nil
			}
			cursor = res.Anchor
		}
	},
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete <path|id>",
	Short: "Soft-delete a page (or hard-delete with --hard)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		if pageDeleteHard {
			return svc.HardDelete(cmd.Context(), id)
		}
		return svc.SoftDelete(cmd.Context(), id, pageRecursive)
	},
}

var pageUnlockCmd = &cobra.Command{
	Use:   "unlock <path|id>",
	Short: "Clear a page's edit lock without authentication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		return svc.ForceUnlock(cmd.Context(), id)
	},
}

var pageUndeleteCmd = &cobra.Command{
	Use:   "undelete <id>",
	Short: "Restore a soft-deleted page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		target := pageUndeleteTo
		if target == "" {
			meta, err := svc.Store().Meta(args[0])
			if err != nil {
				return err
			}
			target = meta.Path
		}
		return svc.Restore(cmd.Context(), args[0], target, pageRecursive)
	},
}

var pageMoveCmd = &cobra.Command{
	Use:   "move_to <path|id> <new-path>",
	Short: "Rename a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		return svc.Rename(cmd.Context(), id, args[1], pageRecursive)
	},
}

var pageCatCmd = &cobra.Command{
	Use:   "cat <path|id>",
	Short: "Print a page's source (or render it with --render)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		src, err := svc.Store().Source(id, pageCatRev)
		if err != nil {
			return err
		}
		if !pageCatRender {
			fmt.Print(src.Source)
			return nil
		}
		renderer, err := glamour.NewTermRenderer(glamour.WithEnvironmentConfig())
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		out, err := renderer.Render(src.Source)
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	pageAddCmd.Flags().StringVar(&pageAddUser, "user", "admin", "author recorded on the revision")
	pageListCmd.Flags().BoolVar(&pageListDeleted, "with-deleted", false, "include soft-deleted pages")
	pageListCmd.Flags().IntVar(&pageListLimit, "limit", 0, "page size (default 50)")
	pageDeleteCmd.Flags().BoolVar(&pageDeleteHard, "hard", false, "remove the page irreversibly")
	pageDeleteCmd.Flags().BoolVar(&pageRecursive, "recursive", false, "include descendants")
	pageUndeleteCmd.Flags().StringVar(&pageUndeleteTo, "to", "", "restore at this path (default: last deleted path)")
	pageUndeleteCmd.Flags().BoolVar(&pageRecursive, "recursive", false, "include descendants")
	pageMoveCmd.Flags().BoolVar(&pageRecursive, "recursive", false, "include descendants")
	pageCatCmd.Flags().Uint64Var(&pageCatRev, "rev", 0, "revision (default latest)")
	pageCatCmd.Flags().BoolVar(&pageCatRender, "render", false, "render to the terminal")

	pageCmd.AddCommand(pageAddCmd, pageListCmd, pageDeleteCmd, pageUnlockCmd, pageUndeleteCmd, pageMoveCmd, pageCatCmd)
}
