// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display paints the latest sample on a Waveshare 2.13" e-paper
// panel. Frames are composed in landscape with gg and rotated onto the
// portrait panel memory.
package display

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v2"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
)

// Panel is the part of the e-paper driver the screen uses.
type Panel interface {
	Draw(dstRect image.Rectangle, src image.Image, srcPts image.Point) error
	Bounds() image.Rectangle
}

// Indicators reports which radios are enabled, shown in the corner.
type Indicators func() (bt, wlan bool)

// Screen renders samples onto a Panel.
type Screen struct {
	panel      Panel
	indicators Indicators
	port       spi.PortCloser

	mu sync.Mutex
}

// Open initialises the HAT on the configured SPI port. host.Init must have
// run before.
func Open(cfg config.Screen, ind Indicators) (*Screen, error) {
	p, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, errors.Wrapf(err, "open spi port %q", cfg.SPIPort)
	}
	dev, err := waveshare2in13v2.NewHat(p, &waveshare2in13v2.EPD2in13v2)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "create e-paper driver")
	}
	if err := dev.Init(waveshare2in13v2.Full); err != nil {
		p.Close()
		return nil, errors.Wrap(err, "init e-paper")
	}
	log.Infof("display: %s ready", dev)
	s := New(dev, ind)
	s.port = p
	return s, nil
}

// New wraps an already initialised panel. ind may be nil.
func New(p Panel, ind Indicators) *Screen {
	return &Screen{panel: p, indicators: ind}
}

// Close releases the SPI port, if Open acquired one.
func (s *Screen) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

// Booting shows the startup screen.
func (s *Screen) Booting() error {
	return s.show(RenderBooting(s.landscape()))
}

// Draw paints sample. The altitude replaces the humidity corner when
// showAltitude is set and the sample carries an elevation.
func (s *Screen) Draw(sample env.Sample, showAltitude bool) error {
	var bt, wlan bool
	if s.indicators != nil {
		bt, wlan = s.indicators()
	}
	return s.show(Render(s.landscape(), sample, Options{
		ShowAltitude: showAltitude,
		Bluetooth:    bt,
		WLAN:         wlan,
	}))
}

func (s *Screen) show(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.panel.Bounds()
	if err := s.panel.Draw(b, Rotate(img, b), image.Point{}); err != nil {
		return errors.Wrap(err, "draw e-paper")
	}
	return nil
}

// landscape is the panel size with width and height swapped.
func (s *Screen) landscape() image.Point {
	b := s.panel.Bounds()
	return image.Pt(b.Dy(), b.Dx())
}

// Options tune what Render shows besides the CO2 triple.
type Options struct {
	ShowAltitude bool
	Bluetooth    bool
	WLAN         bool
}

// Render composes a landscape frame of the given size: an inverted top bar
// with temperature and humidity, and the CO2 value in large type below.
func Render(size image.Point, sample env.Sample, opts Options) image.Image {
	w, h := float64(size.X), float64(size.Y)
	bar := h / 3

	dc := gg.NewContext(size.X, size.Y)
	dc.SetColor(color.White)
	dc.Clear()

	dc.SetColor(color.Black)
	dc.DrawRectangle(0, 0, w, bar)
	dc.Fill()

	dc.SetFontFace(inconsolata.Bold8x16)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f°C", sample.Temperature), 5, bar/2, 0, 0.35)
	right := fmt.Sprintf("%.0f%% RH", sample.Humidity)
	if opts.ShowAltitude && sample.Elevation != nil && *sample.Elevation != 0 {
		right = fmt.Sprintf("%.0f m", *sample.Elevation)
	}
	dc.DrawStringAnchored(right, w-5, bar/2, 1, 0.35)

	dc.SetColor(color.Black)
	dc.Push()
	dc.ScaleAbout(3, 3, w/2, bar+(h-bar)/2)
	dc.DrawStringAnchored(fmt.Sprintf("%d", sample.CO2), w/2, bar+(h-bar)/2, 0.5, 0.35)
	dc.Pop()
	dc.SetFontFace(basicfont.Face7x13)
	dc.DrawStringAnchored("ppm", w-5, h-5, 1, 0)

	var marks string
	if opts.Bluetooth {
		marks += "BT "
	}
	if opts.WLAN {
		marks += "WLAN"
	}
	if marks != "" {
		dc.DrawStringAnchored(marks, 5, h-5, 0, 0)
	}
	return dc.Image()
}

// RenderBooting composes the startup frame.
func RenderBooting(size image.Point) image.Image {
	dc := gg.NewContext(size.X, size.Y)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)
	dc.SetFontFace(inconsolata.Bold8x16)
	dc.Push()
	dc.ScaleAbout(2, 2, float64(size.X)/2, float64(size.Y)/2)
	dc.DrawStringAnchored("booting...", float64(size.X)/2, float64(size.Y)/2, 0.5, 0.5)
	dc.Pop()
	return dc.Image()
}

// Rotate turns a landscape frame clockwise onto a portrait panel of the
// given bounds. The panel shows On as white.
func Rotate(src image.Image, dst image.Rectangle) *image1bit.VerticalLSB {
	out := image1bit.NewVerticalLSB(dst)
	sb := src.Bounds()
	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		for x := dst.Min.X; x < dst.Max.X; x++ {
			sx := sb.Min.X + (y - dst.Min.Y)
			sy := sb.Max.Y - 1 - (x - dst.Min.X)
			if !image.Pt(sx, sy).In(sb) {
				continue
			}
			out.SetBit(x, y, image1bit.Bit(!dark(src.At(sx, sy))))
		}
	}
	return out
}

func dark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return (r+g+b)/3 < 0x8000
}
