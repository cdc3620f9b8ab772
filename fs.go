package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PinloopFS is an Afero FS with the few OS lookups config loading needs,
// so tests can run against memory.
type PinloopFS interface {
	afero.Fs
	Abs(string) (string, error)
	HomeDir() (string, error)
}

type pinloopOSFS struct {
	afero.Fs
}

func NewPinloopOSFS() PinloopFS {
	return &pinloopOSFS{
		afero.NewOsFs(),
	}
}

func (g *pinloopOSFS) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (g *pinloopOSFS) HomeDir() (string, error) {
	return os.UserHomeDir()
}

type pinloopMemFS struct {
	afero.Fs
}

func NewPinloopMemFS() PinloopFS {
	return &pinloopMemFS{
		afero.NewMemMapFs(),
	}
}

func (g *pinloopMemFS) Abs(path string) (string, error) {
	return path, nil
}

func (g *pinloopMemFS) HomeDir() (string, error) {
	return "/home/pi", nil
}

// expandPath resolves a leading ~/ and makes the result absolute.
func expandPath(fs PinloopFS, path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := fs.HomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return fs.Abs(path)
}
