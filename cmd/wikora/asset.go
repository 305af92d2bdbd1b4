package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var assetCmd = &cobra.Command{
	Use:     "asset",
	Short:   "Manage page attachments",
	GroupID: "content",
}

var (
	assetAddName string
	assetAddMIME string
	assetAddUser string
	assetDelHard bool
	assetListAll bool
)

var assetAddCmd = &cobra.Command{
	Use:   "add <page-path|page-id> <file>",
	Short: "Attach a file to a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		owner, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()

		name := assetAddName
		if name == "" {
			name = filepath.Base(args[1])
		}
		mtype := assetAddMIME
		if mtype == "" {
			mtype = mime.TypeByExtension(filepath.Ext(name))
			if mtype == "" {
				mtype = "application/octet-stream"
			}
		}
		info, err := svc.Upload(cmd.Context(), owner, name, mtype, f, assetAddUser, "")
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s)\n", info.AssetID, info.OriginalName, humanize.IBytes(uint64(info.Size)))
		return nil
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list [page-path|page-id]",
	Short: "List a page's assets, or all assets with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		if assetListAll || len(args) == 0 {
			assets, err := svc.Store().Assets()
			if err != nil {
				return err
			}
			for _, a := range assets {
				marker := " "
				if a.Deleted {
					marker = "D"
				}
				fmt.Printf("%s %s %-30s %8s owner=%s\n", marker, a.AssetID, a.OriginalName, humanize.IBytes(uint64(a.Size)), a.Owner)
			}
			return nil
		}
		owner, err := resolveRef(svc, args[0])
		if err != nil {
			return err
		}
		assets, err := svc.Store().PageAssets(owner)
		if err != nil {
			return err
		}
		for _, a := range assets {
			marker := " "
			if a.Deleted {
				marker = "D"
			}
			fmt.Printf("%s %s %-30s %8s %s\n", marker, a.AssetID, a.OriginalName, humanize.IBytes(uint64(a.Size)), a.MIME)
		}
		return nil
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete <asset-id>",
	Short: "Soft-delete an asset (or hard-delete with --hard)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		if assetDelHard {
			return svc.HardDeleteAsset(cmd.Context(), args[0])
		}
		return svc.SoftDeleteAsset(cmd.Context(), args[0])
	},
}

var assetUndeleteCmd = &cobra.Command{
	Use:   "undelete <asset-id>",
	Short: "Clear an asset's deleted flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()
		return svc.UndeleteAsset(cmd.Context(), args[0])
	},
}

var assetMoveCmd = &cobra.Command{
	Use:   "move_to <asset-id> <page-path|page-id>",
	Short: "Reassign an asset to another page (revives zombies)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		owner, err := resolveRef(svc, args[1])
		if err != nil {
			return err
		}
		return svc.ReassignAsset(cmd.Context(), args[0], owner)
	},
}

func init() {
	assetAddCmd.Flags().StringVar(&assetAddName, "name", "", "stored file name (default: file's base name)")
	assetAddCmd.Flags().StringVar(&assetAddMIME, "mime", "", "MIME type (default: from extension)")
	assetAddCmd.Flags().StringVar(&assetAddUser, "user", "admin", "uploader recorded on the asset")
	assetListCmd.Flags().BoolVar(&assetListAll, "all", false, "list every asset, zombies included")
	assetDeleteCmd.Flags().BoolVar(&assetDelHard, "hard", false, "remove metadata and body irreversibly")

	assetCmd.AddCommand(assetAddCmd, assetListCmd, assetDeleteCmd, assetUndeleteCmd, assetMoveCmd)
}
