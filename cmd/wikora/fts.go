package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wikora/wikora/internal/ftindex"
)

var ftsCmd = &cobra.Command{
	Use:     "fts",
	Short:   "Full-text index maintenance and search",
	GroupID: "maint",
}

var (
	ftsTargets     string
	ftsWithDeleted bool
	ftsAllRevision bool
)

var ftsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the authoritative store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.RebuildIndex(); err != nil {
			return err
		}
		n, err := svc.Index().DocCount()
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d documents\n", n)
		return nil
	},
}

var ftsMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Ask the index engine to merge its segments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()
		return svc.Index().Merge()
	},
}

var ftsSearchCmd = &cobra.Command{
	Use:   "search <expression>",
	Short: "Search page contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		var targets []string
		if ftsTargets != "" {
			targets = strings.Split(ftsTargets, ",")
		}
		hits, err := svc.Search(ftindex.Request{
			Expression:  args[0],
			Targets:     targets,
			WithDeleted: ftsWithDeleted,
			AllRevision: ftsAllRevision,
		})
		if err != nil {
			return err
		}
		for _, h := range hits {
			marker := " "
			if h.Deleted {
				marker = "D"
			}
			fmt.Printf("%s %6.3f %s@%d %s\n", marker, h.Score, h.PageID, h.Revision, h.Path)
		}
		return nil
	},
}

func init() {
	ftsSearchCmd.Flags().StringVar(&ftsTargets, "targets", "", "comma-separated subset of headings,body,code")
	ftsSearchCmd.Flags().BoolVar(&ftsWithDeleted, "with-deleted", false, "include soft-deleted pages")
	ftsSearchCmd.Flags().BoolVar(&ftsAllRevision, "all-revision", false, "match non-latest revisions too")

	ftsCmd.AddCommand(ftsRebuildCmd, ftsMergeCmd, ftsSearchCmd)
}
