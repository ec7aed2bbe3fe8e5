//go:build dlib

package dlib

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
)

// Analyzer implements pipeline.Analyzer with a dlib recognizer.
// go-face recognizers are not safe for concurrent use, so calls are serialized.
type Analyzer struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the models from modelsDir.
func New(modelsDir string) (*Analyzer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("fail to initialize recognizer: %w", err)
	}
	return &Analyzer{rec: rec}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, img []byte) ([]types.FaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := asJpeg(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
	}

	a.mu.Lock()
	faces, err := a.rec.Recognize(data)
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecode, err)
	}

	out := make([]types.FaceResult, 0, len(faces))
	for _, f := range faces {
		vec := make([]float32, len(f.Descriptor))
		copy(vec, f.Descriptor[:])
		r := f.Rectangle
		out = append(out, types.FaceResult{
			Box:   [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y},
			Vec:   matcher.Normalize(vec),
			Score: 1,
		})
	}
	return out, nil
}

// Close frees the recognizer.
func (a *Analyzer) Close() error {
	a.rec.Close()
	return nil
}

// asJpeg re-encodes PNG input since go-face only decodes JPEG.
func asJpeg(img []byte) ([]byte, error) {
	if utils.IsJpeg(img) {
		return img, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
