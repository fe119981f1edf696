package datasource

import (
	"errors"
	"testing"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Source
		wantErr bool
	}{
		{name: "short cases", input: "cases", want: SourceCases},
		{name: "class style cases", input: "CasesDataGrabber", want: SourceCases},
		{name: "short deaths", input: "deaths", want: SourceDeaths},
		{name: "class style deaths", input: "DeathsDataGrabber", want: SourceDeaths},
		{name: "padded", input: "  Deaths ", want: SourceDeaths},
		{name: "unknown", input: "RecoveredDataGrabber", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSource(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSource) {
					t.Errorf("expected ErrUnknownSource, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseSource(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSourceString(t *testing.T) {
	if SourceCases.String() != "cases" {
		t.Errorf("unexpected name %q", SourceCases.String())
	}
	if SourceDeaths.column() != "new_deaths" {
		t.Errorf("unexpected column %q", SourceDeaths.column())
	}
	if Source(42).String() != "unknown" {
		t.Errorf("unexpected name %q", Source(42).String())
	}
}
