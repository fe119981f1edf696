package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"

	"covidforecast/logger"
)

const (
	// DefaultURL serves the Our World in Data COVID-19 dataset.
	DefaultURL = "https://covid.ourworldindata.org/data/owid-covid-data.csv"
	// DefaultLocation is the OWID location whose series is extracted.
	DefaultLocation = "World"
	// DefaultDir is where dataset files are written and read.
	DefaultDir = "datasets"

	datasetDateLayout = "2006-01-02"
)

// OWIDGrabber extracts one daily series for one location from the OWID CSV.
type OWIDGrabber struct {
	source   Source
	dir      string
	url      string
	location string
	client   *http.Client
	now      func() time.Time
}

// NewOWIDGrabber creates a grabber for source.
func NewOWIDGrabber(source Source, opts Options) *OWIDGrabber {
	opts = opts.withDefaults()
	return &OWIDGrabber{
		source:   source,
		dir:      opts.Dir,
		url:      opts.URL,
		location: opts.Location,
		client:   opts.Client,
		now:      opts.Now,
	}
}

func (g *OWIDGrabber) Name() string {
	return g.source.String()
}

func (g *OWIDGrabber) DatasetFileName(datasetDate string) string {
	if datasetDate == "" {
		return g.source.String() + ".csv"
	}
	return fmt.Sprintf("%s_%s.csv", g.source, datasetDate)
}

type owidRecord struct {
	Location  string `csv:"location"`
	Date      string `csv:"date"`
	NewCases  string `csv:"new_cases"`
	NewDeaths string `csv:"new_deaths"`
}

func (r owidRecord) value(source Source) string {
	if source == SourceDeaths {
		return r.NewDeaths
	}
	return r.NewCases
}

// GrabData downloads the OWID CSV and writes the series as a dated dataset
// file plus the undated latest copy.
func (g *OWIDGrabber) GrabData(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", g.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", g.url, resp.Status)
	}

	body := &countingReader{r: resp.Body}
	rows, err := g.parse(body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", g.url, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no %s rows for location %q", g.source.column(), g.location)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return err
	}
	dated := filepath.Join(g.dir, g.DatasetFileName(g.now().Format(datasetDateLayout)))
	latest := filepath.Join(g.dir, g.DatasetFileName(""))
	for _, path := range []string{dated, latest} {
		if err := WriteDataset(path, rows); err != nil {
			return err
		}
	}

	logger.L().Infow("dataset grabbed",
		"source", g.source.String(),
		"location", g.location,
		"downloaded", humanize.Bytes(uint64(body.n)),
		"rows", humanize.Comma(int64(len(rows))),
		"file", dated,
	)
	return nil
}

func (g *OWIDGrabber) parse(r io.Reader) ([]Row, error) {
	var rows []Row
	var parseErr error
	seen := make(map[string]struct{})
	duplicates := 0
	err := gocsv.UnmarshalToCallback(stripBOM(r), func(rec owidRecord) {
		if parseErr != nil || rec.Location != g.location {
			return
		}
		// A repeated date would shift every later day index.
		if _, ok := seen[rec.Date]; ok {
			duplicates++
			return
		}
		seen[rec.Date] = struct{}{}
		count, err := parseCount(rec.value(g.source))
		if err != nil {
			parseErr = fmt.Errorf("%s %s: %w", rec.Date, g.source.column(), err)
			return
		}
		rows = append(rows, Row{Day: len(rows), Count: count})
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if duplicates > 0 {
		logger.L().Warnw("duplicate dates dropped", "source", g.source.String(), "location", g.location, "rows", duplicates)
	}
	return rows, nil
}

// parseCount accepts integer or float cells; blanks count as zero.
func parseCount(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
