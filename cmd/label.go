package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/labels"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	labelDryRun     bool
	labelRaw        bool
	labelWorkbook   string
	labelSpareParts string
)

var labelCmd = &cobra.Command{
	Use:   "label <image_path>",
	Short: "Read a product label and append its fields to the workbook",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := Cfg.Labels

		img, err := os.ReadFile(args[0])
		if err != nil {
			utils.Die("Failed to read image file", err, nil)
		}

		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			utils.Die("Missing API key", fmt.Errorf("set %s", cfg.APIKeyEnv), nil)
		}

		// 1. Hosted OCR
		ocr, err := labels.NewGemini(cmd.Context(), key, cfg.Model)
		if err != nil {
			utils.Die("Failed to create OCR client", err, nil)
		}
		ex := &labels.Extractor{OCR: ocr, Workbook: cfg.Workbook, SpareParts: cfg.SpareParts}

		fmt.Fprintln(os.Stderr, "🔍 Reading label...")
		res, err := ex.Extract(cmd.Context(), img)
		if err != nil {
			utils.Die("Label extraction failed", err, nil)
		}

		// 2. Show what was found
		if labelRaw {
			fmt.Printf("%s\n\n", res.Raw)
		}
		printFields(os.Stdout, res)

		if labelDryRun {
			return
		}

		// 3. File it
		if err := ex.Save(res.Row); err != nil {
			utils.Die("Failed to save row", err, nil)
		}
		fmt.Printf("✅ Saved to %s\n", cfg.Workbook)
	},
}

func init() {
	labelCmd.Flags().BoolVar(&labelDryRun, "dry-run", false, "Print the fields without saving")
	labelCmd.Flags().BoolVar(&labelRaw, "raw", false, "Also print the raw OCR text")
	labelCmd.Flags().StringVar(&labelWorkbook, "workbook", "", "Override labels.workbook")
	labelCmd.Flags().StringVar(&labelSpareParts, "spare-parts", "", "Override labels.spare_parts")
	labelCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if labelWorkbook != "" {
			Cfg.Labels.Workbook = labelWorkbook
		}
		if labelSpareParts != "" {
			Cfg.Labels.SpareParts = labelSpareParts
		}
	}
	rootCmd.AddCommand(labelCmd)
}

func printFields(out io.Writer, res labels.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")
	fmt.Fprintln(w, "-----\t-----")
	for _, col := range labels.Columns {
		v := res.Row[col]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", col, v)
	}
	w.Flush()
	if res.Matched {
		fmt.Fprintln(out, "🔧 Product Description taken from the spare parts table.")
	}
}
