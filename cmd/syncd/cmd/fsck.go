package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/spf13/cobra"
)

var repair bool

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Cross-check the blob store against the metadata store",
	Long: `fsck walks the blob store and compares every file with its shared_blobs row.
It reports orphan files, rows whose content is missing and size mismatches. With
--repair, orphans are deleted and mismatched blobs are reset to zero progress so the
next sync resends them. Run it while the daemon is stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustLoadSettings()
		storage, err := openStorage(settings)
		if err != nil {
			log.Fatalf("fsck: %s", err)
		}

		report, err := storage.Fsck(context.Background(), repair)
		if err != nil {
			log.Fatalf("fsck: %s", err)
		}

		printFsckReport(os.Stdout, report)
		if !report.Clean() && !repair {
			os.Exit(2)
		}
	},
}

func printFsckReport(w io.Writer, report *ft.FsckReport) {
	for _, f := range report.Findings {
		status := ""
		if f.Repaired {
			status = " (repaired)"
		}
		_, _ = fmt.Fprintf(w, "%-14s %s recorded=%d physical=%d%s\n",
			f.Issue, f.ContentHash, f.RecordedSize, f.PhysicalSize, status)
	}

	_, _ = fmt.Fprintf(w, "%d blobs, %d files, %d findings\n",
		report.BlobsChecked, report.FilesWalked, len(report.Findings))
}

func init() {
	rootCmd.AddCommand(fsckCmd)
	fsckCmd.Flags().BoolVar(&repair, "repair", false, "delete orphans and reset mismatched blobs")
}
