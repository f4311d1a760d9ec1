package layout

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Palette indexes of the two-tone bitmap
const (
	White uint8 = 0
	Black uint8 = 1
)

// Palette is the palette of every bitmap produced by Rasterize
var Palette = color.Palette{color.White, color.Black}

// threshold splits anti-aliased gray pixels into black and white
const threshold = 0x80

// Rasterize draws p into a two-tone bitmap of p.Width x p.Height. The font
// named in the plan must be among fonts.
func Rasterize(p Plan, fonts []Font) (*image.Paletted, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", p.Width, p.Height)
	}
	gray := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	draw.Draw(gray, gray.Bounds(), image.White, image.Point{}, draw.Src)

	if len(p.Lines) > 0 {
		f, ok := lookup(fonts, p.FontName, p.FontSize)
		if !ok {
			return nil, fmt.Errorf("font %s/%.1f not available", p.FontName, p.FontSize)
		}
		if !p.Band.Empty() {
			draw.Draw(gray, p.Band.Intersect(gray.Bounds()), image.Black, image.Point{}, draw.Src)
		}
		for _, l := range p.Lines {
			ink := image.Black
			if l.Role == RoleHeader && !p.Band.Empty() {
				ink = image.White
			}
			d := font.Drawer{
				Dst:  gray,
				Src:  ink,
				Face: f.Face,
				Dot:  fixed.P(l.X, l.Baseline),
			}
			d.DrawString(l.Text)
		}
	}

	out := image.NewPaletted(gray.Bounds(), Palette)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			if gray.GrayAt(x, y).Y < threshold {
				out.SetColorIndex(x, y, Black)
			}
		}
	}
	return out, nil
}
