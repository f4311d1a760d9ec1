package display

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/klabast/wb-services/abfall-display/internal/logger"
)

// Panel is a hardware e-paper driver in its native orientation
type Panel interface {
	Bounds() image.Rectangle
	Draw(img *image.Paletted) error
	Clear() error
	Sleep() error
	Close() error
}

// PanelSink pushes frames to a Panel, rotating them by a fixed orientation.
// The panel is put to deep sleep after every refresh.
type PanelSink struct {
	panel  Panel
	orient Orientation
	log    logger.Logger
}

// NewPanelSink wraps panel
func NewPanelSink(panel Panel, orient Orientation, log logger.Logger) *PanelSink {
	return &PanelSink{panel: panel, orient: orient, log: log}
}

// Push rotates img, checks it matches the panel and refreshes the panel
func (s *PanelSink) Push(ctx context.Context, img *image.Paletted) error {
	if err := ctx.Err(); err != nil {
		return pushErr("push", err)
	}
	frame := s.orient.Apply(img)
	want := s.panel.Bounds().Size()
	if got := frame.Bounds().Size(); got != want {
		return pushErr("push", fmt.Errorf("frame is %dx%d after %s rotation, panel is %dx%d",
			got.X, got.Y, s.orient, want.X, want.Y))
	}

	s.log.Info("Refreshing panel (%dx%d, rotation %s)...", want.X, want.Y, s.orient)
	if err := s.panel.Draw(frame); err != nil {
		return pushErr("draw", err)
	}
	if err := s.panel.Sleep(); err != nil {
		// frame is already shown
		s.log.Warning("Panel sleep failed: %v", err)
	}
	s.log.Info("Panel refresh complete")
	return nil
}

// Clear blanks the panel to white
func (s *PanelSink) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return pushErr("clear", err)
	}
	s.log.Info("Clearing panel to white...")
	if err := s.panel.Clear(); err != nil {
		return pushErr("clear", err)
	}
	if err := s.panel.Sleep(); err != nil {
		s.log.Warning("Panel sleep failed: %v", err)
	}
	return nil
}

// Close releases the panel
func (s *PanelSink) Close() error {
	return s.panel.Close()
}

// blank returns an all-white two-tone image of size r
func blank(r image.Rectangle) *image.Paletted {
	return image.NewPaletted(r, color.Palette{color.White, color.Black})
}
