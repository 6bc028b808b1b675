package params

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/domain"
)

func TestLoadSetFile_ShippedParameters(t *testing.T) {
	tests := []struct {
		file  string
		model domain.Model
		count int
	}{
		{"primary.yaml", domain.ModelPrimary, 12},
		{"flat.yaml", domain.ModelFlat, 3},
		{"segmented.yaml", domain.ModelSegmented, 10},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			set, err := LoadSetFile(filepath.Join("..", "..", "configs", "parameters", tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.model, set.ModelName)
			assert.Len(t, set.Parameters, tt.count)
			assert.Empty(t, Validate(set))
		})
	}
}

func TestParseSet_MatchesDefaults(t *testing.T) {
	set, err := LoadSetFile(filepath.Join("..", "..", "configs", "parameters", "primary.yaml"))
	require.NoError(t, err)

	def := DefaultPrimary(set.VersionID, set.EffectiveDate)
	assert.Empty(t, Diff(&def, set))
}

func TestParseSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "model: [", "failed to parse parameter YAML"},
		{"bad date", "model: flat\neffective_date: 01/04/2025\n", "invalid effective_date"},
		{"unnamed", "model: flat\nparameters:\n  - value: 1\n", "has no name"},
		{"both", "model: flat\nparameters:\n  - name: x\n    value: 1\n    flag: true\n", "both value and flag"},
		{"neither", "model: flat\nparameters:\n  - name: x\n", "needs a value or a flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSet([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMarshalSet_RoundTrip(t *testing.T) {
	set := DefaultPrimary("p1", effective)
	set.ChangeReason = "annual refresh"

	data, err := MarshalSet(&set)
	require.NoError(t, err)

	back, err := ParseSet(data)
	require.NoError(t, err)
	assert.Equal(t, set.VersionID, back.VersionID)
	assert.Equal(t, set.EffectiveDate, back.EffectiveDate)
	assert.Equal(t, "annual refresh", back.ChangeReason)
	assert.Empty(t, Diff(&set, back))
}

func TestLoadSetFile_Missing(t *testing.T) {
	_, err := LoadSetFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read parameter file")
}

func TestDiff(t *testing.T) {
	from := DefaultFlat("f1", effective)
	to := DefaultFlat("f2", effective)
	setParam(&to, FlatCoefficient, decimal.NewFromFloat(0.16))
	to.Parameters = to.Parameters[:2]

	changes := Diff(&from, &to)
	assert.Equal(t, []Change{
		{Name: FlatCoefficient, Before: "0.15", After: "0.16"},
		{Name: LeverageConstant, Before: "12.5"},
	}, changes)

	assert.Len(t, Diff(nil, &from), 3)
}
