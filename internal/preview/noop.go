//go:build !gocv

package preview

import "github.com/andresmejia3/rollcall/internal/pipeline"

// New fails in builds without OpenCV.
func New(title string) (pipeline.Renderer, error) {
	return nil, ErrUnavailable
}
