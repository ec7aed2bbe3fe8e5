// Package preview draws recognized faces on a desktop window.
// The window needs OpenCV and is only compiled with the gocv build tag.
package preview

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/andresmejia3/rollcall/internal/pipeline"
	"github.com/andresmejia3/rollcall/internal/types"
)

// ErrUnavailable is returned by New in builds without the gocv tag.
var ErrUnavailable = errors.New("preview window not available: rebuild with -tags gocv")

var (
	known   = color.RGBA{0, 255, 0, 0}
	unknown = color.RGBA{255, 0, 0, 0}
)

// Label is the text drawn above a face box.
func Label(a pipeline.Annotation) string {
	if a.Name == types.Unknown {
		return a.Name
	}
	return fmt.Sprintf("%s (%.2f)", a.Name, a.Score)
}

// Color picks green for known faces and red for unknown ones.
func Color(a pipeline.Annotation) color.RGBA {
	if a.Name == types.Unknown {
		return unknown
	}
	return known
}

// IsQuitKey reports whether a key code returned by the window means quit.
func IsQuitKey(key int) bool {
	return key == 'q' || key == 'Q'
}
