//go:build !dlib

package cmd

import "errors"

func newDlibAnalyzer(modelsDir string) (faceAnalyzer, error) {
	return nil, errors.New("this binary was built without dlib support, rebuild with -tags dlib")
}
