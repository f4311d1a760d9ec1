// Package layout fits the next-pickup text onto the fixed e-paper canvas.
//
// Compute picks the largest candidate font at which the date header and the
// wrapped type list fit, stepping down through the candidates in order. When
// even the smallest font overflows, the type list is cut and the last kept
// line ends in an ellipsis. Compute never fails and is deterministic: the same
// block, canvas and fonts always give the same Plan.
package layout

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/font"
)

// Layout constants
const (
	Margin   = 4
	Leading  = 2
	Ellipsis = "..."
)

// Role tells the rasterizer how to draw a line
type Role int

const (
	RoleHeader Role = iota
	RoleItem
	RoleNotice
)

func (r Role) String() string {
	switch r {
	case RoleHeader:
		return "header"
	case RoleItem:
		return "item"
	default:
		return "notice"
	}
}

// Block is the text to lay out: a header with items, or a lone notice
type Block struct {
	Header string
	Items  []string
	Notice string
}

// Line is a positioned line of text. Baseline is the y of the text baseline.
type Line struct {
	Role     Role
	Text     string
	X        int
	Baseline int
	Width    int
}

// Plan is the result of Compute
type Plan struct {
	Width      int
	Height     int
	FontName   string
	FontSize   float64
	Ascent     int
	Descent    int
	LineHeight int
	Band       image.Rectangle
	Lines      []Line
	Truncated  bool
}

// String renders the plan in a stable textual form
func (p Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "canvas=%dx%d font=%s/%.2f asc=%d desc=%d lh=%d band=%v truncated=%t\n",
		p.Width, p.Height, p.FontName, p.FontSize, p.Ascent, p.Descent, p.LineHeight, p.Band, p.Truncated)
	for _, l := range p.Lines {
		fmt.Fprintf(&b, "%s x=%d y=%d w=%d %q\n", l.Role, l.X, l.Baseline, l.Width, l.Text)
	}
	return b.String()
}

type metrics struct {
	ascent, descent, lineHeight int
}

func measure(face font.Face) metrics {
	m := face.Metrics()
	asc, desc := m.Ascent.Ceil(), m.Descent.Ceil()
	return metrics{ascent: asc, descent: desc, lineHeight: asc + desc + Leading}
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// Compute lays out b on a width x height canvas using the first font in
// fonts (ordered largest to smallest) at which everything fits.
func Compute(b Block, width, height int, fonts []Font) Plan {
	empty := Plan{Width: width, Height: height}
	innerW, innerH := width-2*Margin, height-2*Margin
	if len(fonts) == 0 || innerW <= 0 || innerH <= 0 {
		empty.Truncated = b.Notice != "" || b.Header != "" || len(b.Items) > 0
		return empty
	}

	if b.Notice != "" || (b.Header == "" && len(b.Items) == 0) {
		return computeNotice(b.Notice, width, height, fonts)
	}

	for _, f := range fonts {
		m := measure(f.Face)
		if textWidth(f.Face, b.Header) > innerW {
			continue
		}
		lines, ok := wrapItems(f.Face, b.Items, innerW, false)
		if !ok || blockHeight(m, len(lines)) > innerH {
			continue
		}
		return place(f, m, width, height, b.Header, lines, false)
	}

	// Smallest font still overflows: cut the list to what fits
	f := fonts[len(fonts)-1]
	m := measure(f.Face)
	if m.lineHeight > innerH {
		empty.FontName, empty.FontSize = f.Name, f.Size
		empty.Truncated = true
		return empty
	}
	header := ellipsize(f.Face, b.Header, innerW)
	lines, _ := wrapItems(f.Face, b.Items, innerW, true)
	truncated := header != b.Header

	capacity := 0
	if len(lines) > 0 {
		capacity = (innerH - m.lineHeight - Leading) / m.lineHeight
		if capacity < 0 {
			capacity = 0
		}
	}
	if len(lines) > capacity {
		truncated = true
		lines = lines[:capacity]
		if capacity > 0 {
			lines[capacity-1] = withEllipsis(f.Face, lines[capacity-1], innerW)
		}
	}
	return place(f, m, width, height, header, lines, truncated)
}

func computeNotice(notice string, width, height int, fonts []Font) Plan {
	innerW, innerH := width-2*Margin, height-2*Margin
	for _, f := range fonts {
		m := measure(f.Face)
		if m.lineHeight <= innerH && textWidth(f.Face, notice) <= innerW {
			return placeNotice(f, m, width, height, notice, false)
		}
	}
	f := fonts[len(fonts)-1]
	m := measure(f.Face)
	if m.lineHeight > innerH {
		return Plan{Width: width, Height: height, FontName: f.Name, FontSize: f.Size, Truncated: true}
	}
	return placeNotice(f, m, width, height, ellipsize(f.Face, notice, innerW), true)
}

// blockHeight is the height of the header band plus n item lines
func blockHeight(m metrics, n int) int {
	if n == 0 {
		return m.lineHeight
	}
	return m.lineHeight + Leading + n*m.lineHeight
}

func newPlan(f Font, m metrics, width, height int, truncated bool) Plan {
	return Plan{
		Width:      width,
		Height:     height,
		FontName:   f.Name,
		FontSize:   f.Size,
		Ascent:     m.ascent,
		Descent:    m.descent,
		LineHeight: m.lineHeight,
		Truncated:  truncated,
	}
}

func centeredX(face font.Face, width int, text string) (x, w int) {
	w = textWidth(face, text)
	return Margin + (width-2*Margin-w)/2, w
}

func place(f Font, m metrics, width, height int, header string, items []string, truncated bool) Plan {
	p := newPlan(f, m, width, height, truncated)
	innerH := height - 2*Margin
	top := Margin + (innerH-blockHeight(m, len(items)))/2

	p.Band = image.Rect(0, top, width, top+m.lineHeight)
	x, w := centeredX(f.Face, width, header)
	p.Lines = append(p.Lines, Line{Role: RoleHeader, Text: header, X: x, Baseline: top + Leading/2 + m.ascent, Width: w})

	y := top + m.lineHeight + Leading
	for _, text := range items {
		x, w := centeredX(f.Face, width, text)
		p.Lines = append(p.Lines, Line{Role: RoleItem, Text: text, X: x, Baseline: y + Leading/2 + m.ascent, Width: w})
		y += m.lineHeight
	}
	return p
}

func placeNotice(f Font, m metrics, width, height int, text string, truncated bool) Plan {
	p := newPlan(f, m, width, height, truncated)
	top := Margin + (height-2*Margin-m.lineHeight)/2
	x, w := centeredX(f.Face, width, text)
	p.Lines = []Line{{Role: RoleNotice, Text: text, X: x, Baseline: top + Leading/2 + m.ascent, Width: w}}
	return p
}

// wrapItems joins items with ", " and breaks the result into lines no wider
// than maxW, preferring breaks between items. Without force it reports false
// when a single word is wider than maxW; with force such words are ellipsized.
func wrapItems(face font.Face, items []string, maxW int, force bool) ([]string, bool) {
	var lines []string
	cur := ""
	fits := func(s string) bool { return textWidth(face, s) <= maxW }
	flush := func() {
		if cur != "" {
			lines = append(lines, cur)
		}
	}

	for i, item := range items {
		piece := item
		if i < len(items)-1 {
			piece += ","
		}
		if cur != "" && fits(cur+" "+piece) {
			cur += " " + piece
			continue
		}
		if fits(piece) {
			flush()
			cur = piece
			continue
		}
		for _, word := range strings.Fields(piece) {
			if cur != "" && fits(cur+" "+word) {
				cur += " " + word
				continue
			}
			if !fits(word) {
				if !force {
					return nil, false
				}
				word = ellipsize(face, word, maxW)
			}
			flush()
			cur = word
		}
	}
	flush()
	return lines, true
}

// ellipsize shortens s until it fits maxW, marking the cut with Ellipsis
func ellipsize(face font.Face, s string, maxW int) string {
	if textWidth(face, s) <= maxW {
		return s
	}
	return withEllipsis(face, s, maxW)
}

// withEllipsis appends Ellipsis to s, dropping trailing runes until it fits
func withEllipsis(face font.Face, s string, maxW int) string {
	runes := []rune(s)
	for n := len(runes); n >= 0; n-- {
		cand := strings.TrimRight(string(runes[:n]), " ,") + Ellipsis
		if textWidth(face, cand) <= maxW {
			return cand
		}
	}
	return ""
}
