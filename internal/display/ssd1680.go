package display

import (
	"errors"
	"fmt"
	"image"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SSD1680 command set used by the driver
const (
	cmdDriverOutputControl   byte = 0x01
	cmdDeepSleep             byte = 0x10
	cmdDataEntryMode         byte = 0x11
	cmdSoftwareReset         byte = 0x12
	cmdMasterActivation      byte = 0x20
	cmdDisplayUpdateControl1 byte = 0x21
	cmdDisplayUpdateControl2 byte = 0x22
	cmdWriteRAM              byte = 0x24
	cmdBorderWaveform        byte = 0x3C
	cmdRAMXRange             byte = 0x44
	cmdRAMYRange             byte = 0x45
	cmdRAMXCounter           byte = 0x4E
	cmdRAMYCounter           byte = 0x4F

	entryXIncYInc   byte = 0x03
	updateFullCycle byte = 0xF7
)

// maxSPITransfer is the largest single Tx the Linux spidev driver accepts
const maxSPITransfer = 4096

// SSD1680Config describes the wiring of an SSD1680 panel (2.13" 122x250 HAT)
type SSD1680Config struct {
	SPIPort      string
	SPIFrequency physic.Frequency
	DCPin        string
	CSPin        string
	RSTPin       string
	BUSYPin      string

	Width  int
	Height int

	ResetHold      time.Duration
	ResetDelay     time.Duration
	BusyPoll       time.Duration
	RefreshTimeout time.Duration
}

// DefaultSSD1680Config is the Waveshare/Pimoroni HAT pinout on a Raspberry Pi
func DefaultSSD1680Config() SSD1680Config {
	return SSD1680Config{
		SPIFrequency: 1 * physic.MegaHertz,
		DCPin:        "GPIO25",
		CSPin:        "GPIO8",
		RSTPin:       "GPIO17",
		BUSYPin:      "GPIO24",

		Width:  122,
		Height: 250,

		ResetHold:      20 * time.Millisecond,
		ResetDelay:     2 * time.Millisecond,
		BusyPoll:       10 * time.Millisecond,
		RefreshTimeout: 10 * time.Second,
	}
}

// SSD1680 drives the panel directly over SPI and GPIO
type SSD1680 struct {
	port   spi.PortCloser
	conn   spi.Conn
	dc     gpio.PinOut
	cs     gpio.PinOut
	rst    gpio.PinOut
	busy   gpio.PinIn
	cfg    SSD1680Config
	asleep bool
}

// OpenSSD1680 initializes the host, opens SPI and GPIO and wakes the panel
func OpenSSD1680(cfg SSD1680Config) (*SSD1680, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI %q: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(cfg.SPIFrequency, spi.Mode0, 8)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect SPI: %w", err), port.Close())
	}

	dc, cs, rst, busy := gpioreg.ByName(cfg.DCPin), gpioreg.ByName(cfg.CSPin),
		gpioreg.ByName(cfg.RSTPin), gpioreg.ByName(cfg.BUSYPin)
	if dc == nil || cs == nil || rst == nil || busy == nil {
		return nil, errors.Join(errors.New("GPIO pins not found"), port.Close())
	}
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, errors.Join(fmt.Errorf("configure BUSY pin: %w", err), port.Close())
	}

	d := &SSD1680{port: port, conn: conn, dc: dc, cs: cs, rst: rst, busy: busy, cfg: cfg}
	if err := d.init(); err != nil {
		return nil, errors.Join(fmt.Errorf("panel init: %w", err), port.Close())
	}
	return d, nil
}

func (d *SSD1680) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.cfg.Width, d.cfg.Height)
}

// init runs the power-on sequence. It is also needed to wake from deep sleep.
func (d *SSD1680) init() error {
	if err := d.reset(); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.command(cmdSoftwareReset); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}

	lastRow := d.cfg.Height - 1
	lastCol := (d.cfg.Width - 1) >> 3
	sequence := []struct {
		cmd  byte
		data []byte
	}{
		{cmdDriverOutputControl, []byte{byte(lastRow), byte(lastRow >> 8), 0x00}},
		{cmdDataEntryMode, []byte{entryXIncYInc}},
		{cmdRAMXRange, []byte{0x00, byte(lastCol)}},
		{cmdRAMYRange, []byte{0x00, 0x00, byte(lastRow), byte(lastRow >> 8)}},
		{cmdBorderWaveform, []byte{0x05}},
		{cmdDisplayUpdateControl1, []byte{0x00, 0x80}},
	}
	for _, step := range sequence {
		if err := d.command(step.cmd, step.data...); err != nil {
			return err
		}
	}
	d.asleep = false
	return d.waitIdle()
}

func (d *SSD1680) reset() error {
	for _, step := range []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.High, d.cfg.ResetHold},
		{gpio.Low, d.cfg.ResetDelay},
		{gpio.High, d.cfg.ResetHold},
	} {
		if err := d.rst.Out(step.level); err != nil {
			return fmt.Errorf("RST pin: %w", err)
		}
		time.Sleep(step.wait)
	}
	return nil
}

func (d *SSD1680) waitIdle() error {
	deadline := time.Now().Add(d.cfg.RefreshTimeout)
	for time.Now().Before(deadline) {
		if d.busy.Read() == gpio.Low {
			return nil
		}
		time.Sleep(d.cfg.BusyPoll)
	}
	return errors.New("timeout waiting for panel BUSY to clear")
}

// command sends cmd with DC low followed by its data bytes with DC high
func (d *SSD1680) command(cmd byte, data ...byte) error {
	if err := d.transfer(gpio.Low, []byte{cmd}); err != nil {
		return fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.transfer(gpio.High, data); err != nil {
		return fmt.Errorf("command 0x%02X data: %w", cmd, err)
	}
	return nil
}

func (d *SSD1680) transfer(dc gpio.Level, b []byte) error {
	if err := d.dc.Out(dc); err != nil {
		return fmt.Errorf("DC pin: %w", err)
	}
	if err := d.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("CS pin: %w", err)
	}
	for len(b) > 0 {
		n := min(len(b), maxSPITransfer)
		if err := d.conn.Tx(b[:n], nil); err != nil {
			_ = d.cs.Out(gpio.High)
			return err
		}
		b = b[n:]
	}
	return d.cs.Out(gpio.High)
}

// writeFrame loads buf into RAM and runs a full refresh
func (d *SSD1680) writeFrame(buf []byte) error {
	if d.asleep {
		if err := d.init(); err != nil {
			return fmt.Errorf("wake panel: %w", err)
		}
	}
	if err := d.command(cmdRAMXCounter, 0x00); err != nil {
		return err
	}
	if err := d.command(cmdRAMYCounter, 0x00, 0x00); err != nil {
		return err
	}
	if err := d.command(cmdWriteRAM, buf...); err != nil {
		return err
	}
	if err := d.command(cmdDisplayUpdateControl2, updateFullCycle); err != nil {
		return err
	}
	if err := d.command(cmdMasterActivation); err != nil {
		return err
	}
	return d.waitIdle()
}

// Draw packs img (native size) one bit per pixel, set bits are white
func (d *SSD1680) Draw(img *image.Paletted) error {
	if img.Bounds().Size() != d.Bounds().Size() {
		return fmt.Errorf("image is %v, panel is %v", img.Bounds().Size(), d.Bounds().Size())
	}
	return d.writeFrame(packRows(img, d.cfg.Width, d.cfg.Height))
}

func (d *SSD1680) Clear() error {
	buf := make([]byte, ((d.cfg.Width+7)/8)*d.cfg.Height)
	for i := range buf {
		buf[i] = 0xFF
	}
	return d.writeFrame(buf)
}

func (d *SSD1680) Sleep() error {
	if d.asleep {
		return nil
	}
	if err := d.command(cmdDeepSleep, 0x01); err != nil {
		return err
	}
	d.asleep = true
	return nil
}

func (d *SSD1680) Close() error {
	return errors.Join(d.Sleep(), d.port.Close())
}

// packRows converts img to row-major bytes, MSB first, 1 = white
func packRows(img image.Image, width, height int) []byte {
	b := img.Bounds()
	stride := (width + 7) / 8
	buf := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if isWhite(img, b.Min.X+x, b.Min.Y+y) {
				buf[y*stride+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return buf
}
