package datasource

import (
	"fmt"
	"strings"
)

// Source identifies a daily series that can be grabbed and trained on.
type Source int

const (
	// SourceCases is the daily new confirmed cases series.
	SourceCases Source = iota + 1
	// SourceDeaths is the daily new deaths series.
	SourceDeaths
)

var sourceNames = map[Source]string{
	SourceCases:  "cases",
	SourceDeaths: "deaths",
}

// Both the short id and the grabber class name used by older config files
// resolve to the same source.
var sourceFromString = map[string]Source{
	"cases":             SourceCases,
	"casesdatagrabber":  SourceCases,
	"deaths":            SourceDeaths,
	"deathsdatagrabber": SourceDeaths,
}

// String returns the short id of the source.
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// column is the OWID CSV column holding the series.
func (s Source) column() string {
	return "new_" + s.String()
}

// ParseSource resolves a configured data grabber name.
func ParseSource(name string) (Source, error) {
	if source, ok := sourceFromString[strings.ToLower(strings.TrimSpace(name))]; ok {
		return source, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Sources lists every known source in declaration order.
func Sources() []Source {
	return []Source{SourceCases, SourceDeaths}
}
