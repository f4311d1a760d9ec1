package display

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"
	"periph.io/x/host/v3"
)

// Waveshare213 drives a Waveshare 2.13" V4 HAT through the periph device driver.
type Waveshare213 struct {
	port   spi.PortCloser
	dev    *waveshare2in13v4.Dev
	asleep bool
}

// OpenWaveshare213 opens the SPI port (empty name picks the first one) and
// initializes the panel.
func OpenWaveshare213(spiPort string) (*Waveshare213, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI %q: %w", spiPort, err)
	}

	opts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &opts)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open hat: %w", err), port.Close())
	}
	if err := dev.Init(); err != nil {
		return nil, errors.Join(fmt.Errorf("panel init: %w", err), port.Close())
	}
	return &Waveshare213{port: port, dev: dev}, nil
}

func (w *Waveshare213) Bounds() image.Rectangle {
	return w.dev.Bounds()
}

func (w *Waveshare213) wake() error {
	if !w.asleep {
		return nil
	}
	if err := w.dev.Init(); err != nil {
		return fmt.Errorf("wake panel: %w", err)
	}
	w.asleep = false
	return nil
}

func (w *Waveshare213) Draw(img *image.Paletted) error {
	if err := w.wake(); err != nil {
		return err
	}
	bounds := w.dev.Bounds()
	frame := image1bit.NewVerticalLSB(bounds)
	draw.Draw(frame, bounds, img, img.Bounds().Min, draw.Src)
	return w.dev.Draw(bounds, frame, image.Point{})
}

func (w *Waveshare213) Clear() error {
	if err := w.wake(); err != nil {
		return err
	}
	return w.dev.Clear(color.White)
}

func (w *Waveshare213) Sleep() error {
	if w.asleep {
		return nil
	}
	if err := w.dev.Sleep(); err != nil {
		return err
	}
	w.asleep = true
	return nil
}

func (w *Waveshare213) Close() error {
	return errors.Join(w.dev.Halt(), w.port.Close())
}
