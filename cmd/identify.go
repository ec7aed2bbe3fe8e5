package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/known"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	identifyThreshold float64
	identifyAll       bool
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Match the faces in a photo against the known faces directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("threshold") {
			Cfg.Matcher.Threshold = identifyThreshold
		}
		return runIdentify(cmd.Context(), args[0], identifyAll)
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyThreshold, "threshold", "t", matcher.DefaultThreshold, "Minimum similarity for a match (higher is stricter)")
	identifyCmd.Flags().BoolVarP(&identifyAll, "all", "a", false, "Report every face instead of the largest one")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, imagePath string, all bool) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}

	an, err := newAnalyzer(Cfg.Analyzer)
	if err != nil {
		utils.ShowError("Failed to start face analyzer", err, nil)
		return err
	}
	defer an.Close()

	res, err := known.Load(ctx, Cfg.KnownFacesDir, an, os.Stderr)
	if err != nil {
		utils.ShowError("Failed to load known faces", err, nil)
		return err
	}

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	faces, err := an.Analyze(ctx, imgData)
	if err != nil {
		utils.ShowError("AI processing failed", err, nil)
		return err
	}

	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	m := matcher.New(Cfg.Matcher.Threshold)
	if all {
		printMatches(os.Stdout, m, faces, res.Identities)
		return nil
	}

	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}
	best := largestFace(faces)

	name, score := m.Match(best.Vec, res.Identities)
	if name == types.Unknown {
		fmt.Printf("❌ No match found (best similarity %.2f, threshold %.2f).\n", score, m.Threshold)
		return nil
	}
	fmt.Printf("✅ Found Match: %s (similarity %.2f)\n", name, score)
	return nil
}

// largestFace picks the face with the biggest box. faces must not be empty.
func largestFace(faces []types.FaceResult) types.FaceResult {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best
}

func printMatches(out io.Writer, m *matcher.Matcher, faces []types.FaceResult, ids []types.KnownIdentity) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tNAME\tSIMILARITY")
	fmt.Fprintln(w, "----\t---\t----\t----------")
	for i, f := range faces {
		name, score := m.Match(f.Vec, ids)
		fmt.Fprintf(w, "%d\t%d,%d,%d,%d\t%s\t%.2f\n", i+1, f.Box[0], f.Box[1], f.Box[2], f.Box[3], name, score)
	}
	w.Flush()
}
