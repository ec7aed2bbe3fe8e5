package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/pipeline"
	"github.com/andresmejia3/rollcall/internal/worker"
)

// faceAnalyzer is a pipeline.Analyzer that holds a model or subprocess.
type faceAnalyzer interface {
	pipeline.Analyzer
	Close() error
}

// newAnalyzer builds the configured backend. The Python worker is started eagerly
// so a missing interpreter or model shows up before anything else runs.
func newAnalyzer(cfg config.AnalyzerConfig) (faceAnalyzer, error) {
	switch cfg.Backend {
	case "", "python":
		fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
		a := worker.NewAnalyzer(worker.Config{
			Python:    cfg.Python,
			Script:    cfg.Script,
			Model:     cfg.Model,
			DetSize:   cfg.DetSize,
			ModelsDir: cfg.ModelsDir,
		}, cfg.Timeout)
		if err := a.Warm(); err != nil {
			return nil, err
		}
		return a, nil
	case "dlib":
		fmt.Fprintln(os.Stderr, "🚀 Loading dlib models...")
		return newDlibAnalyzer(cfg.ModelsDir)
	default:
		return nil, fmt.Errorf("unknown analyzer backend %q", cfg.Backend)
	}
}
