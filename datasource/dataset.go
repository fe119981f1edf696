package datasource

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Row is one persisted dataset line: day index and observed count.
type Row struct {
	Day   int `csv:"day"`
	Count int `csv:"count"`
}

// rawRow tolerates float cells; they are truncated when converted.
type rawRow struct {
	Day   float64 `csv:"day"`
	Count float64 `csv:"count"`
}

// TrainingSet is the two-column table a model is fitted on. Days is the
// single feature column, Counts the target.
type TrainingSet struct {
	Days   []float64
	Counts []int
}

// Len returns the number of rows.
func (ts *TrainingSet) Len() int {
	return len(ts.Days)
}

// WriteDataset writes rows as a headerless comma-delimited file.
func WriteDataset(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalWithoutHeaders(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write dataset %s: %w", path, err)
	}
	return f.Close()
}

// ReadTrainingSet parses a headerless comma-delimited dataset file.
func ReadTrainingSet(path string) (*TrainingSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw []rawRow
	if err := gocsv.UnmarshalWithoutHeaders(stripBOM(f), &raw); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("read dataset %s: no rows", path)
	}

	ts := &TrainingSet{
		Days:   make([]float64, len(raw)),
		Counts: make([]int, len(raw)),
	}
	for i, row := range raw {
		ts.Days[i] = float64(int(row.Day))
		ts.Counts[i] = int(row.Count)
	}
	return ts, nil
}

func stripBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// Loader memoises parsed training sets by path and modification time.
// Returned sets are shared and must not be modified.
type Loader struct {
	cache *lru.Cache[string, *TrainingSet]
}

// NewLoader creates a loader holding at most size parsed files.
func NewLoader(size int) (*Loader, error) {
	cache, err := lru.New[string, *TrainingSet](size)
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache}, nil
}

// Load returns the training set at path, parsing it only when the file
// changed since the last call.
func (l *Loader) Load(path string) (*TrainingSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s@%d", path, info.ModTime().UnixNano())
	if ts, ok := l.cache.Get(key); ok {
		return ts, nil
	}

	ts, err := ReadTrainingSet(path)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, ts)
	return ts, nil
}
