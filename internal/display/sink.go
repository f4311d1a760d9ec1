// Package display holds the sinks that put a finished bitmap on a panel.
//
// A sink accepts a fully composed two-tone bitmap and reports success or
// failure synchronously. Sinks never retry; a failed push is simply redone by
// the next tick. Two variants exist: PanelSink drives real e-paper hardware
// through a Panel driver, FileSink writes PNG frames for development.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// ErrPush is matched by every error returned from Sink.Push and Sink.Clear
var ErrPush = errors.New("display push failed")

// Sink is the capability the orchestrator pushes frames to
type Sink interface {
	Push(ctx context.Context, img *image.Paletted) error
	Clear(ctx context.Context) error
}

// Orientation rotates the landscape canvas clockwise onto the panel
type Orientation int

const (
	Rotate0   Orientation = 0
	Rotate90  Orientation = 90
	Rotate180 Orientation = 180
	Rotate270 Orientation = 270
)

// ParseOrientation accepts 0, 90, 180 or 270
func ParseOrientation(s string) (Orientation, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid orientation %q", s)
	}
	switch o := Orientation(n); o {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return o, nil
	}
	return 0, fmt.Errorf("invalid orientation %q: must be 0, 90, 180 or 270", s)
}

func (o Orientation) String() string {
	return strconv.Itoa(int(o)) + "°"
}

// Size returns the panel-side size of a w x h canvas
func (o Orientation) Size(w, h int) (int, int) {
	if o == Rotate90 || o == Rotate270 {
		return h, w
	}
	return w, h
}

// Apply returns src rotated clockwise by o. src itself is never modified.
func (o Orientation) Apply(src *image.Paletted) *image.Paletted {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := o.Size(w, h)
	dst := image.NewPaletted(image.Rect(0, 0, dw, dh), src.Palette)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := src.ColorIndexAt(b.Min.X+x, b.Min.Y+y)
			switch o {
			case Rotate90:
				dst.SetColorIndex(h-1-y, x, idx)
			case Rotate180:
				dst.SetColorIndex(w-1-x, h-1-y, idx)
			case Rotate270:
				dst.SetColorIndex(y, w-1-x, idx)
			default:
				dst.SetColorIndex(x, y, idx)
			}
		}
	}
	return dst
}

// isWhite reports whether the pixel at (x, y) is on the light side
func isWhite(img image.Image, x, y int) bool {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y >= 0x80
}

func pushErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPush, op, err)
}
