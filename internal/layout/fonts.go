package layout

import (
	"fmt"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// DefaultSizes are the Go Bold point sizes tried on a 250x122 panel
var DefaultSizes = []float64{30, 26, 22, 18, 15}

// Font is one layout candidate
type Font struct {
	Name string
	Size float64
	Face font.Face
}

// BasicFont is the built-in 7x13 bitmap face. It needs no parsing and is the
// last resort of every candidate list.
func BasicFont() Font {
	return Font{Name: "basic7x13", Size: 13, Face: basicfont.Face7x13}
}

// GoBold returns Go Bold faces for sizes, deduplicated and ordered largest first
func GoBold(sizes ...float64) ([]Font, error) {
	parsed, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse gobold: %w", err)
	}

	ordered := append([]float64(nil), sizes...)
	sort.Sort(sort.Reverse(sort.Float64Slice(ordered)))

	fonts := make([]Font, 0, len(ordered))
	for i, size := range ordered {
		if size <= 0 || (i > 0 && size == ordered[i-1]) {
			continue
		}
		face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("gobold %.1fpt: %w", size, err)
		}
		fonts = append(fonts, Font{Name: "gobold", Size: size, Face: face})
	}
	return fonts, nil
}

// Candidates returns Go Bold at sizes followed by the basic bitmap face
func Candidates(sizes ...float64) ([]Font, error) {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	fonts, err := GoBold(sizes...)
	if err != nil {
		return nil, err
	}
	return append(fonts, BasicFont()), nil
}

func lookup(fonts []Font, name string, size float64) (Font, bool) {
	for _, f := range fonts {
		if f.Name == name && f.Size == size {
			return f, true
		}
	}
	return Font{}, false
}
