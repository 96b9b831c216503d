// Package plot renders a run as a two-panel chart: temperature against the
// setpoint on top, heater output below.
package plot

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"tclab_control/internal/models"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Default canvas size, in inches, and resolution.
const (
	DefaultWidthIn  = 10.0
	DefaultHeightIn = 7.0
	DefaultDPI      = 96
)

// Heater axis is padded so 0 % and 100 % stay visible.
const (
	outputAxisMin = -5.0
	outputAxisMax = 105.0
)

var (
	measuredColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	setpointColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	outputColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// Options sets the canvas size. Zero values use the defaults.
type Options struct {
	WidthIn  float64
	HeightIn float64
	DPI      int
}

func (o Options) withDefaults() Options {
	if o.WidthIn <= 0 {
		o.WidthIn = DefaultWidthIn
	}
	if o.HeightIn <= 0 {
		o.HeightIn = DefaultHeightIn
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	return o
}

// Render writes the run chart as PNG to w.
func Render(w io.Writer, run models.Run, samples []models.Sample, opts Options) error {
	opts = opts.withDefaults()

	top, err := temperaturePanel(run, samples)
	if err != nil {
		return err
	}
	bottom, err := outputPanel(run, samples)
	if err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(opts.WidthIn)*vg.Inch, vg.Length(opts.HeightIn)*vg.Inch),
		vgimg.UseDPI(opts.DPI),
	)
	dc := draw.New(c)
	plots := [][]*plot.Plot{{top}, {bottom}}
	tiles := draw.Tiles{
		Rows: 2,
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 2 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SaveFile renders the chart into path, creating parent directories.
func SaveFile(path string, run models.Run, samples []models.Sample, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := Render(bw, run, samples, opts); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush plot file: %w", err)
	}
	return f.Close()
}

func temperaturePanel(run models.Run, samples []models.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("PI control  Kp=%g  Ki=%g  setpoint=%g °C", run.Kp, run.Ki, run.SetpointC)
	p.Y.Label.Text = "Temperature (°C)"
	p.X.Min, p.X.Max = 0, xMax(run, samples)
	p.Add(plotter.NewGrid())

	sp, err := plotter.NewLine(plotter.XYs{{X: 0, Y: run.SetpointC}, {X: p.X.Max, Y: run.SetpointC}})
	if err != nil {
		return nil, fmt.Errorf("setpoint line: %w", err)
	}
	sp.LineStyle.Color = setpointColor
	sp.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(sp)
	p.Legend.Add("setpoint", sp)

	if len(samples) > 0 {
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i].X, pts[i].Y = s.T, s.Measured
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("temperature line: %w", err)
		}
		line.LineStyle.Color = measuredColor
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("measured", line)
	}
	p.Legend.Top = true
	return p, nil
}

func outputPanel(run models.Run, samples []models.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Heater (%)"
	p.X.Min, p.X.Max = 0, xMax(run, samples)
	p.Y.Min, p.Y.Max = outputAxisMin, outputAxisMax
	p.Add(plotter.NewGrid())

	if len(samples) > 0 {
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i].X, pts[i].Y = s.T, s.Output
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("output line: %w", err)
		}
		line.LineStyle.Color = outputColor
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
	}
	return p, nil
}

// xMax is the run duration, or the last sample time for runs recorded
// without one.
func xMax(run models.Run, samples []models.Sample) float64 {
	m := run.DurationSec
	if n := len(samples); n > 0 && samples[n-1].T > m {
		m = samples[n-1].T
	}
	if m <= 0 {
		m = 1
	}
	return m
}
