// Package raster saves and loads spectrogram rasters as binary PGM
// files. PGM keeps the files grep-ably simple and viewable with any
// image tool an operator has at hand.
package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timberwatch/timberwatch/internal/model"
)

// ErrNotPGM is returned when a file is not a binary PGM raster.
var ErrNotPGM = errors.New("not a binary PGM file")

// Save writes an artifact's raster to dir as a binary PGM named after
// the artifact id and returns the file path.
func Save(dir string, art *model.Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create raster directory: %w", err)
	}

	path := filepath.Join(dir, art.ID+".pgm")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640) //nolint:gosec // path is built from our own uuid
	if err != nil {
		return "", fmt.Errorf("failed to create raster file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "P5\n%d %d\n255\n", art.Width, art.Height)
	if _, err := w.Write(art.Raster); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write raster: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to flush raster: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close raster file: %w", err)
	}
	return path, nil
}

// Load reads a binary PGM raster back into pixels and dimensions.
func Load(path string) (pixels []byte, width, height int, err error) {
	f, err := os.Open(path) //nolint:gosec // path comes from our own queue rows
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open raster file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic string
	var maxVal int
	if _, err := fmt.Fscanf(r, "%2s\n%d %d\n%d\n", &magic, &width, &height, &maxVal); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrNotPGM, path)
	}
	if magic != "P5" || width <= 0 || height <= 0 || maxVal != 255 {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrNotPGM, path)
	}

	pixels = make([]byte, width*height)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read raster pixels: %w", err)
	}
	return pixels, width, height, nil
}
