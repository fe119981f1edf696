package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owidFixture = "\ufeffiso_code,location,date,total_cases,new_cases,new_deaths\n" +
	"ISR,Israel,2020-03-01,10,3,\n" +
	"OWID_WRL,World,2020-03-01,100,10.0,1.0\n" +
	"OWID_WRL,World,2020-03-02,120,20.0,\n" +
	"ISR,Israel,2020-03-02,12,2,0\n" +
	"OWID_WRL,World,2020-03-03,150,30.0,4.0\n"

func fixedNow() time.Time {
	return time.Date(2020, 3, 4, 9, 0, 0, 0, time.UTC)
}

func TestDatasetFileName(t *testing.T) {
	g := NewOWIDGrabber(SourceDeaths, Options{})
	assert.Equal(t, "deaths.csv", g.DatasetFileName(""))
	assert.Equal(t, "deaths_2020-04-01.csv", g.DatasetFileName("2020-04-01"))
	assert.Equal(t, "deaths", g.Name())
}

func TestOWIDGrabberGrabData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(owidFixture))
	}))
	defer server.Close()

	dir := t.TempDir()
	tests := []struct {
		name     string
		source   Source
		location string
		want     []int
	}{
		{name: "world cases", source: SourceCases, want: []int{10, 20, 30}},
		{name: "world deaths", source: SourceDeaths, want: []int{1, 0, 4}},
		{name: "israel cases", source: SourceCases, location: "Israel", want: []int{3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subdir := filepath.Join(dir, tt.name)
			g := NewOWIDGrabber(tt.source, Options{
				Dir:      subdir,
				URL:      server.URL,
				Location: tt.location,
				Now:      fixedNow,
			})
			require.NoError(t, g.GrabData(context.Background()))

			for _, name := range []string{g.DatasetFileName(""), g.DatasetFileName("2020-03-04")} {
				ts, err := ReadTrainingSet(filepath.Join(subdir, name))
				require.NoError(t, err)
				assert.Equal(t, tt.want, ts.Counts)
				require.Equal(t, len(tt.want), ts.Len())
				for i, day := range ts.Days {
					assert.Equal(t, float64(i), day)
				}
			}
		})
	}
}

func TestOWIDGrabberUnknownLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(owidFixture))
	}))
	defer server.Close()

	g := NewOWIDGrabber(SourceCases, Options{Dir: t.TempDir(), URL: server.URL, Location: "Atlantis"})
	assert.Error(t, g.GrabData(context.Background()))
}

func TestOWIDGrabberDropsDuplicateDates(t *testing.T) {
	g := NewOWIDGrabber(SourceCases, Options{})
	csv := "location,date,new_cases,new_deaths\n" +
		"World,2020-03-01,5,0\n" +
		"World,2020-03-01,5,0\n" +
		"World,2020-03-02,7,1\n"

	rows, err := g.parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []Row{{Day: 0, Count: 5}, {Day: 1, Count: 7}}, rows)
}

func TestOWIDGrabberBadCell(t *testing.T) {
	g := NewOWIDGrabber(SourceDeaths, Options{})
	csv := "location,date,new_cases,new_deaths\n" +
		"World,2020-03-01,5,n/a\n"

	_, err := g.parse(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestOWIDGrabberBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	g := NewOWIDGrabber(SourceCases, Options{Dir: dir, URL: server.URL})
	require.Error(t, g.GrabData(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(Options{Dir: t.TempDir()}, map[Source]Options{
		SourceDeaths: {Location: "Israel"},
	})
	assert.Equal(t, []Source{SourceCases, SourceDeaths}, r.Sources())

	g, err := r.Grabber(SourceDeaths)
	require.NoError(t, err)
	owid, ok := g.(*OWIDGrabber)
	require.True(t, ok)
	assert.Equal(t, "Israel", owid.location)

	empty := NewRegistry()
	_, err = empty.Grabber(SourceCases)
	assert.ErrorIs(t, err, ErrGrabberNotFound)
}
