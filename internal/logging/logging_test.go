package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Info().Str("camera", "0").Msg("monitoring started")

	out := buf.String()
	if !strings.Contains(out, `"camera":"0"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, "monitoring started") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Debug().Msg("dropped")
	Info().Msg("also dropped")
	Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level messages should be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn message should pass the filter, got %q", out)
	}
}

func TestPackageHelpers_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	Debug().Msg("at debug")
	Info().Msg("at info")
	Warn().Msg("at warn")
	Error().Msg("at error")

	log := With("engine")
	log.Info().Msg("tagged")

	out := buf.String()
	for _, want := range []string{"at debug", "at info", "at warn", "at error", `"component":"engine"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got %q", want, out)
		}
	}
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "bogus", Format: "json", Output: &buf})

	Info().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("info should be enabled when level is unparseable")
	}
}
