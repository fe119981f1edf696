package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidforecast/datasource"
)

const owidCSV = "location,date,new_cases,new_deaths\n" +
	"World,2020-03-01,10,1\n" +
	"World,2020-03-02,20,2\n"

func writeConfig(t *testing.T, dir, url string) string {
	t.Helper()
	cfg := fmt.Sprintf(`{
  "datasets_dir": %q,
  "sources": {"cases": {"url": %q}, "deaths": {"url": %q}},
  "models": [
    {"model_name": "cases", "model": {"type": "regression", "polynomial_degree": 1},
     "days_to_predict": 3, "datagrabber_class": "cases", "grab_data_from_server": true}
  ]
}`, filepath.Join(dir, "datasets"), url, url)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestGrab(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(owidCSV))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := writeConfig(t, dir, server.URL)

	var out bytes.Buffer
	require.NoError(t, grab(context.Background(), &out, path, []string{"DeathsDataGrabber"}))
	assert.Equal(t, fmt.Sprintf("deaths saved to %s\n", filepath.Join(dir, "datasets", "deaths.csv")), out.String())

	ts, err := datasource.ReadTrainingSet(filepath.Join(dir, "datasets", "deaths.csv"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ts.Counts)

	_, err = os.Stat(filepath.Join(dir, "datasets", "cases.csv"))
	assert.True(t, os.IsNotExist(err))

	out.Reset()
	require.NoError(t, grab(context.Background(), &out, path, nil))
	assert.Contains(t, out.String(), "cases saved to")
	assert.Contains(t, out.String(), "deaths saved to")
}

func TestGrabUnknownSource(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http://127.0.0.1:1")

	err := grab(context.Background(), &bytes.Buffer{}, path, []string{"recoveries"})
	assert.ErrorIs(t, err, datasource.ErrUnknownSource)
}
