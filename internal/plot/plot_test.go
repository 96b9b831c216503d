package plot

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tclab_control/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun() (models.Run, []models.Sample) {
	run := models.Run{ID: "r1", SetpointC: 40, Kp: 5, Ki: 0.5, DurationSec: 20, SamplePeriodSec: 2}
	samples := make([]models.Sample, 10)
	for i := range samples {
		samples[i] = models.Sample{
			Index:    i,
			T:        float64(2 * i),
			Measured: 25 + float64(i),
			Setpoint: 40,
			Output:   math.Max(0, 100-float64(10*i)),
		}
	}
	return run, samples
}

func TestRender_WritesPNGOfRequestedSize(t *testing.T) {
	run, samples := testRun()
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, run, samples, Options{WidthIn: 4, HeightIn: 3, DPI: 50}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestRender_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, models.Run{SetpointC: 30}, nil, Options{DPI: 30})
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestRender_RejectsNaN(t *testing.T) {
	run, samples := testRun()
	samples[3].Measured = math.NaN()

	err := Render(&bytes.Buffer{}, run, samples, Options{DPI: 30})
	assert.Error(t, err)
}

func TestSaveFile_CreatesDirectories(t *testing.T) {
	run, samples := testRun()
	path := filepath.Join(t.TempDir(), "plots", "run.png")

	require.NoError(t, SaveFile(path, run, samples, Options{DPI: 30}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestXMax(t *testing.T) {
	run, samples := testRun()
	assert.Equal(t, 20.0, xMax(run, samples))
	assert.Equal(t, 18.0, xMax(models.Run{}, samples))
	assert.Equal(t, 1.0, xMax(models.Run{}, nil))
}
