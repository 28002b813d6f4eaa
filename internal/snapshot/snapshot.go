// Package snapshot stores visual baselines on disk and compares fresh
// screenshots against them pixel by pixel.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Diff summarizes a pixel comparison.
type Diff struct {
	Differing    int
	Total        int
	SizeMismatch bool
}

// Ratio is the share of differing pixels, in [0, 1].
func (d Diff) Ratio() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Differing) / float64(d.Total)
}

// Compare decodes two PNG images and counts the pixels whose channels differ
// by more than threshold (0-255). Images with different bounds are a full
// mismatch.
func Compare(baseline, actual []byte, threshold uint8) (Diff, error) {
	want, err := png.Decode(bytes.NewReader(baseline))
	if err != nil {
		return Diff{}, fmt.Errorf("failed to decode baseline image: %w", err)
	}
	got, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return Diff{}, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return compareImages(want, got, threshold), nil
}

func compareImages(want, got image.Image, threshold uint8) Diff {
	wb, gb := want.Bounds(), got.Bounds()
	if wb.Dx() != gb.Dx() || wb.Dy() != gb.Dy() {
		total := max(wb.Dx()*wb.Dy(), gb.Dx()*gb.Dy())
		return Diff{Differing: total, Total: total, SizeMismatch: true}
	}

	d := Diff{Total: wb.Dx() * wb.Dy()}
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			r1, g1, b1, a1 := want.At(wb.Min.X+x, wb.Min.Y+y).RGBA()
			r2, g2, b2, a2 := got.At(gb.Min.X+x, gb.Min.Y+y).RGBA()
			if channelDelta(r1, r2) > threshold || channelDelta(g1, g2) > threshold ||
				channelDelta(b1, b2) > threshold || channelDelta(a1, a2) > threshold {
				d.Differing++
			}
		}
	}
	return d
}

// channelDelta compares two 16-bit channel values at 8-bit precision.
func channelDelta(a, b uint32) uint8 {
	a8, b8 := a>>8, b>>8
	if a8 > b8 {
		return uint8(a8 - b8)
	}
	return uint8(b8 - a8)
}

// Store keeps baselines as <dir>/<component>-<viewport>.png.
type Store struct {
	dir    string
	update bool
}

// NewStore returns a baseline store rooted at dir. In update mode every
// comparison overwrites the baseline with the fresh screenshot.
func NewStore(dir string, update bool) *Store {
	return &Store{dir: dir, update: update}
}

// Dir returns the baseline directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the baseline file for a component at a viewport.
func (s *Store) Path(component, viewport string) string {
	return filepath.Join(s.dir, fileName(component, viewport)+".png")
}

func (s *Store) actualPath(component, viewport string) string {
	return filepath.Join(s.dir, fileName(component, viewport)+".actual.png")
}

// fileName keeps selector punctuation out of file names.
func fileName(component, viewport string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return clean(component) + "-" + clean(viewport)
}

// Result describes the outcome of matching one screenshot.
type Result struct {
	Path string
	Diff Diff
	// Created is set when no baseline existed and one was written.
	Created bool
	// Updated is set when update mode replaced the baseline.
	Updated bool
	// ActualPath is where the mismatching screenshot was written, if any.
	ActualPath string
}

// Match compares actual with the stored baseline for component at viewport.
// A missing baseline is written from actual and reported as Created. When the
// ratio exceeds maxRatio the screenshot is kept next to the baseline.
func (s *Store) Match(component, viewport string, actual []byte, threshold uint8, maxRatio float64) (Result, error) {
	res := Result{Path: s.Path(component, viewport)}

	if s.update {
		if err := s.write(res.Path, actual); err != nil {
			return res, err
		}
		res.Updated = true
		return res, nil
	}

	baseline, err := os.ReadFile(res.Path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.write(res.Path, actual); err != nil {
			return res, err
		}
		res.Created = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to read baseline %s: %w", res.Path, err)
	}

	res.Diff, err = Compare(baseline, actual, threshold)
	if err != nil {
		return res, err
	}
	if res.Diff.Ratio() > maxRatio {
		res.ActualPath = s.actualPath(component, viewport)
		if err := s.write(res.ActualPath, actual); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Store) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
