//go:build gocv

package preview

import (
	"image"

	"github.com/andresmejia3/rollcall/internal/pipeline"
	"github.com/andresmejia3/rollcall/internal/types"
	"gocv.io/x/gocv"
)

// Window is an OpenCV highgui window implementing pipeline.Renderer.
type Window struct {
	win *gocv.Window
}

// New opens a window titled title.
func New(title string) (pipeline.Renderer, error) {
	return &Window{win: gocv.NewWindow(title)}, nil
}

// Render decodes the frame, draws every face and shows it. It returns true when q was pressed.
func (w *Window) Render(frame types.Frame, faces []pipeline.Annotation) bool {
	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return false
	}
	defer mat.Close()
	if mat.Empty() {
		return false
	}

	for _, f := range faces {
		rect := image.Rect(f.Box[0], f.Box[1], f.Box[2], f.Box[3])
		c := Color(f)
		gocv.Rectangle(&mat, rect, c, 2)
		gocv.PutText(&mat, Label(f), image.Pt(f.Box[0], f.Box[1]-10), gocv.FontHersheySimplex, 0.9, c, 2)
	}

	w.win.IMShow(mat)
	return IsQuitKey(w.win.WaitKey(1))
}

func (w *Window) Close() error {
	return w.win.Close()
}
