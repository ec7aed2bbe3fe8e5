//go:build dlib

package cmd

import "github.com/andresmejia3/rollcall/internal/dlib"

func newDlibAnalyzer(modelsDir string) (faceAnalyzer, error) {
	a, err := dlib.New(modelsDir)
	if err != nil {
		return nil, err
	}
	return a, nil
}
