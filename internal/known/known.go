// Package known builds the set of registered identities from a directory of labeled photos.
package known

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/schollz/progressbar/v3"
)

// Analyzer extracts faces from an image.
type Analyzer interface {
	Analyze(ctx context.Context, img []byte) ([]types.FaceResult, error)
}

var extensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Skipped is an image that did not produce an identity.
type Skipped struct {
	File   string
	Reason string
}

// Result of loading a directory.
type Result struct {
	Identities []types.KnownIdentity
	Skipped    []Skipped
}

// Files lists the image files in dir, sorted by name.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read known faces dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// NameOf is the identity name for an image file: its base name without extension.
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load analyzes every image in dir. Images that cannot be read or contain no face are skipped
// with a warning. When an image has several faces only the first one is used.
// Progress is drawn on progress; pass io.Discard to hide it.
func Load(ctx context.Context, dir string, an Analyzer, progress io.Writer) (Result, error) {
	files, err := Files(dir)
	if err != nil {
		return Result{}, err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("🗂️  Loading known faces"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	var res Result
	skip := func(file, reason string) {
		slog.Warn("known: skipping image", "file", file, "reason", reason)
		res.Skipped = append(res.Skipped, Skipped{File: file, Reason: reason})
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		bar.Add(1)

		data, err := os.ReadFile(file)
		if err != nil {
			skip(file, err.Error())
			continue
		}

		faces, err := an.Analyze(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			skip(file, err.Error())
			continue
		}
		if len(faces) == 0 {
			skip(file, "no face detected")
			continue
		}

		res.Identities = append(res.Identities, types.KnownIdentity{
			Name:      NameOf(file),
			Embedding: faces[0].Vec,
		})
	}

	slog.Info("known: loaded identities", "dir", dir, "count", len(res.Identities), "skipped", len(res.Skipped))
	return res, nil
}
