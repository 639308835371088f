package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOptionsDefaults(t *testing.T) {
	o, err := parseOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if o != defaultOptions() {
		t.Errorf("parseOptions(nil) = %+v, want defaults", o)
	}
}

func TestParseOptionsFlags(t *testing.T) {
	o, err := parseOptions([]string{"-op", "cie", "-mode", "LUV", "-size", "128", "-show-color=false", "-gpu", "1"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Op != "cie" || o.Mode != "LUV" || o.Size != 128 || o.ShowColor || o.GPU != 1 {
		t.Errorf("parsed %+v", o)
	}
}

func TestPresetWithOverrides(t *testing.T) {
	preset := `
op = "squareswire"
input = "a.png"
input2 = "b.png"
progress = 0.25
squares = 6
smoothness = 0.8
backend = "host"
`
	path := filepath.Join(t.TempDir(), "fade.toml")
	if err := os.WriteFile(path, []byte(preset), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		args         []string
		wantProgress float64
		wantSquares  int
		wantOut      string
	}{
		{"preset only", []string{"-preset", path}, 0.25, 6, "out.png"},
		{"flag wins", []string{"-progress", "0.9", "-preset", path}, 0.9, 6, "out.png"},
		{"flag after preset", []string{"-preset", path, "-squares", "3", "-out", "x.bmp"}, 0.25, 3, "x.bmp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if o.Op != "squareswire" || o.Input != "a.png" || o.Input2 != "b.png" || o.Backend != "host" {
				t.Errorf("preset fields not applied: %+v", o)
			}
			if o.Progress != tt.wantProgress || o.Squares != tt.wantSquares || o.Output != tt.wantOut {
				t.Errorf("progress %v squares %d out %q, want %v %d %q",
					o.Progress, o.Squares, o.Output, tt.wantProgress, tt.wantSquares, tt.wantOut)
			}
			if o.Smoothness != 0.8 {
				t.Errorf("smoothness = %v, want 0.8", o.Smoothness)
			}
			if o.Hue != defaultOptions().Hue {
				t.Errorf("unset field hue = %v, want default", o.Hue)
			}
		})
	}
}

func TestPresetErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `opp = "hue"`},
		{"wrong type", `squares = "many"`},
		{"syntax", `op = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			if err := decodePreset(tt.src, &o); err == nil {
				t.Error("decodePreset accepted invalid input")
			}
		})
	}

	if _, err := parseOptions([]string{"-preset", filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Error("missing preset accepted")
	}
}
