package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/known"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var knownCmd = &cobra.Command{
	Use:   "known",
	Short: "Load the known faces directory and report what was registered",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		an, err := newAnalyzer(Cfg.Analyzer)
		if err != nil {
			utils.ShowError("Failed to start face analyzer", err, nil)
			return err
		}
		defer an.Close()

		res, err := known.Load(cmd.Context(), Cfg.KnownFacesDir, an, os.Stderr)
		if err != nil {
			utils.ShowError("Failed to load known faces", err, nil)
			return err
		}
		printKnown(os.Stdout, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(knownCmd)
}

func printKnown(out io.Writer, res known.Result) {
	if len(res.Identities) == 0 && len(res.Skipped) == 0 {
		fmt.Fprintln(out, "No images found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIMS\tSTATUS")
	fmt.Fprintln(w, "----\t----\t------")
	for _, id := range res.Identities {
		fmt.Fprintf(w, "%s\t%d\tok\n", id.Name, len(id.Embedding))
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "%s\t-\tskipped: %s\n", filepath.Base(s.File), s.Reason)
	}
	w.Flush()
}
