package forecast

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/skratchdot/open-golang/open"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"covidforecast/logger"
)

// Plotter renders the observed counts against the fitted values and returns
// where the figure was written.
type Plotter interface {
	Plot(name string, x []float64, y []int, fitted []int) (string, error)
}

// ErrPlotNameCollision is returned when two models would share a plot file.
var ErrPlotNameCollision = errors.New("plot file name already used by another model")

var fitColor = color.RGBA{R: 191, B: 191, A: 255}

// PNGPlotter writes one PNG per model into dir and optionally opens it in
// the system viewer.
type PNGPlotter struct {
	dir    string
	show   bool
	opener func(path string) error
	width  vg.Length
	height vg.Length

	mu sync.Mutex
	// owners maps every path written so far to the model name that wrote it.
	owners map[string]string
}

// NewPNGPlotter creates a plotter saving under dir.
func NewPNGPlotter(dir string, show bool) *PNGPlotter {
	return &PNGPlotter{
		dir:    dir,
		show:   show,
		opener: open.Run,
		owners: make(map[string]string),
		width:  8 * vg.Inch,
		height: 6 * vg.Inch,
	}
}

// Path returns the file a model's figure is saved to.
func (p *PNGPlotter) Path(name string) string {
	return filepath.Join(p.dir, fileName(name)+".png")
}

// Plot draws a scatter of the observations and the fitted curve.
func (p *PNGPlotter) Plot(name string, x []float64, y []int, fitted []int) (string, error) {
	if len(x) != len(y) || len(x) != len(fitted) {
		return "", fmt.Errorf("plot %s: got %d days, %d counts and %d fitted values", name, len(x), len(y), len(fitted))
	}

	pl, err := PlotGraph(name, x, y, fitted)
	if err != nil {
		return "", err
	}

	path := p.Path(name)
	if err := p.claim(path, name); err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create plots dir: %w", err)
	}
	if err := pl.Save(p.width, p.height, path); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	logger.L().Infow("plot saved", "model", name, "path", path)

	if p.show {
		if err := p.opener(path); err != nil {
			logger.L().Warnw("failed to open plot", "path", path, "error", err)
		}
	}
	return path, nil
}

// claim records that name owns path and refuses a different model name
// mapping to the same file.
func (p *PNGPlotter) claim(path, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if owner, ok := p.owners[path]; ok && owner != name {
		return fmt.Errorf("%w: %q and %q both map to %s", ErrPlotNameCollision, owner, name, path)
	}
	p.owners[path] = name
	return nil
}

// PlotGraph builds the figure of a model: the observations as a scatter
// and the fitted values as a line, titled and labelled after the model.
func PlotGraph(name string, x []float64, y []int, fitted []int) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Amount of %s in each day", name)
	pl.X.Label.Text = "Day"
	pl.Y.Label.Text = name

	scatter, err := plotter.NewScatter(observed(x, y))
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)

	line, err := plotter.NewLine(SortedFit(x, fitted))
	if err != nil {
		return nil, err
	}
	line.Color = fitColor
	line.Width = vg.Points(1.5)

	pl.Add(scatter, line)
	return pl, nil
}

func observed(x []float64, y []int) plotter.XYs {
	points := make(plotter.XYs, len(x))
	for i := range x {
		points[i].X = x[i]
		points[i].Y = float64(y[i])
	}
	return points
}

// SortedFit pairs every day with its fitted value, ordered by day, so the
// curve is drawn left to right.
func SortedFit(x []float64, fitted []int) plotter.XYs {
	points := make(plotter.XYs, len(x))
	for i := range x {
		points[i].X = x[i]
		points[i].Y = float64(fitted[i])
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].X < points[j].X })
	return points
}

func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "model"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
}
