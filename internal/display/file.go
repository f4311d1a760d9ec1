package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"github.com/klabast/wb-services/abfall-display/internal/logger"
	"github.com/spf13/afero"
)

// FileSink is the development sink: each frame is written as a PNG file
// instead of refreshing hardware.
type FileSink struct {
	fs     afero.Fs
	path   string
	orient Orientation
	width  int
	height int
	log    logger.Logger
}

// NewFileSink writes frames to path. width and height are the canvas size
// used by Clear.
func NewFileSink(fsys afero.Fs, path string, width, height int, orient Orientation, log logger.Logger) *FileSink {
	return &FileSink{fs: fsys, path: path, orient: orient, width: width, height: height, log: log}
}

// Path returns the output file
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Push(ctx context.Context, img *image.Paletted) error {
	if err := ctx.Err(); err != nil {
		return pushErr("push", err)
	}
	if err := s.write(s.orient.Apply(img)); err != nil {
		return pushErr("push", err)
	}
	s.log.Info("Frame written to %s", s.path)
	return nil
}

func (s *FileSink) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return pushErr("clear", err)
	}
	w, h := s.orient.Size(s.width, s.height)
	if err := s.write(blank(image.Rect(0, 0, w, h))); err != nil {
		return pushErr("clear", err)
	}
	s.log.Info("Blank frame written to %s", s.path)
	return nil
}

// write encodes img fully in memory, then replaces the output file atomically
func (s *FileSink) write(img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp frame: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close frame: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace frame: %w", err)
	}
	return nil
}
