package compare

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleSet() *ComparisonSet {
	return &ComparisonSet{
		EntityID:   "BANK-001",
		AsOf:       asOf,
		BaseMethod: "primary",
		BaseResult: &ComparisonResult{
			Method:    "primary",
			RunID:     "run-1",
			Capital:   decimal.RequireFromString("4754.36"),
			RWA:       decimal.RequireFromString("59429.50"),
			GateState: "computed",
		},
		AlternativeResults: []ComparisonResult{
			{
				Method:              "flat",
				RunID:               "run-2",
				Capital:             decimal.NewFromInt(7500),
				RWA:                 decimal.NewFromInt(93750),
				GateState:           "not_applicable",
				CapitalDiffFromBase: decimal.RequireFromString("2745.64"),
				CapitalPctFromBase:  decimal.RequireFromString("57.75"),
				RWADiffFromBase:     decimal.RequireFromString("34320.50"),
			},
			{Method: "segmented", Error: "insufficient data"},
		},
		Observations: []string{"Highest requirement: flat exceeds primary by 2745.64 (57.75%)"},
	}
}

func TestTableFormatter_Format(t *testing.T) {
	result := (&TableFormatter{}).Format(sampleSet())

	for _, want := range []string{
		"OPERATIONAL RISK CAPITAL COMPARISON",
		"Entity: BANK-001",
		"As of:  2025-03-31",
		"primary (base)",
		"4,754.36",
		"59,429.50",
		"unavailable",
		"+2,745.64 (57.8%)",
		"OBSERVATIONS",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("Expected %q in output:\n%s", want, result)
		}
	}
}

func TestTableFormatter_Format_EmptyAlternatives(t *testing.T) {
	set := sampleSet()
	set.AlternativeResults = nil
	set.Observations = nil

	result := (&TableFormatter{}).Format(set)
	if strings.Contains(result, "COMPARISON TO BASE") {
		t.Error("Did not expect comparison section without alternatives")
	}
	if strings.Contains(result, "OBSERVATIONS") {
		t.Error("Did not expect observations section")
	}
}

func TestTableFormatter_FormatDecimal(t *testing.T) {
	tf := &TableFormatter{}
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"999.5", "999.50"},
		{"1000", "1,000.00"},
		{"-1234567.891", "1,234,567.89"},
	}
	for _, tt := range tests {
		if got := tf.formatDecimal(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("formatDecimal(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTableFormatter_FormatCompact(t *testing.T) {
	got := (&TableFormatter{}).FormatCompact(sampleSet())
	want := "Base: primary 4,754.36 | flat: +2,745.64 | segmented: n/a"
	if got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestCSVFormatter_Format(t *testing.T) {
	out, err := (&CSVFormatter{}).Format(sampleSet())
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Method,Type,Capital,RWA") {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if lines[1] != "primary,base,4754.36,59429.50,computed,0.00,0.00,0.00,run-1," {
		t.Errorf("Unexpected base row: %s", lines[1])
	}
	if lines[3] != "segmented,alternative,,,,,,,,insufficient data" {
		t.Errorf("Unexpected unavailable row: %s", lines[3])
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		out, err := (&JSONFormatter{Pretty: pretty}).Format(sampleSet())
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		var decoded ComparisonSet
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.BaseResult == nil || !decoded.BaseResult.Capital.Equal(decimal.RequireFromString("4754.36")) {
			t.Errorf("Base capital lost in JSON: %s", out)
		}
		if pretty != strings.Contains(out, "\n  ") {
			t.Errorf("Pretty=%v produced unexpected layout", pretty)
		}
	}
}
