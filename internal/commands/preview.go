package commands

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/klabast/wb-services/abfall-display/internal/layout"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// previewSink satisfies app.Sink for the preview orchestrator; it is never pushed to
type previewSink struct{}

func (previewSink) Push(context.Context, *image.Paletted) error { return nil }

func preview(c *cli.Context) error {
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	orch, err := e.orchestrator(previewSink{})
	if err != nil {
		return err
	}
	content, img, plan, err := orch.Preview(context.Background())
	if err != nil {
		return err
	}
	out := c.App.Writer
	fmt.Fprintf(out, "Next pickup: %s %s\n", content.DateKey(), content.TypesLabel())

	if path := c.String("png"); path != "" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		fmt.Fprintf(out, "Preview written to %s\n", path)
		return nil
	}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cols, _, err := term.GetSize(int(f.Fd()))
		if err != nil {
			cols = 80
		}
		writeTextArt(out, img, cols)
		return nil
	}
	fmt.Fprint(out, plan.String())
	return nil
}

// writeTextArt draws img with half-block characters, two pixel rows per
// text row, scaled down to fit cols.
func writeTextArt(w io.Writer, img *image.Paletted, cols int) {
	b := img.Bounds()
	step := 1
	for b.Dx()/step > cols && step < b.Dx() {
		step++
	}
	ink := func(x, y int) bool {
		if y >= b.Max.Y {
			return false
		}
		return img.ColorIndexAt(x, y) == layout.Black
	}

	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 * step {
		for x := b.Min.X; x < b.Max.X; x += step {
			top, bottom := ink(x, y), ink(x, y+step)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}
	io.WriteString(w, sb.String())
}
