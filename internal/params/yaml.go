package params

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rgehrsitz/opcap/internal/domain"
)

const dateLayout = "2006-01-02"

// setFile is the on-disk layout of a proposed parameter set
type setFile struct {
	Model           string      `yaml:"model"`
	VersionID       string      `yaml:"version_id"`
	EffectiveDate   string      `yaml:"effective_date"`
	ParentVersionID string      `yaml:"parent_version_id,omitempty"`
	ChangeReason    string      `yaml:"change_reason,omitempty"`
	Parameters      []paramFile `yaml:"parameters"`
}

// paramFile carries either a numeric value or a flag
type paramFile struct {
	Name  string           `yaml:"name"`
	Value *decimal.Decimal `yaml:"value,omitempty"`
	Flag  *bool            `yaml:"flag,omitempty"`
}

// LoadSetFile reads a parameter set from a YAML file
func LoadSetFile(path string) (*domain.ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}
	return ParseSet(data)
}

// ParseSet decodes a parameter set from YAML. Structural problems are
// reported here; rule violations are left to Validate.
func ParseSet(data []byte) (*domain.ParameterSet, error) {
	var f setFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse parameter YAML: %w", err)
	}

	set := &domain.ParameterSet{
		ModelName:       domain.Model(f.Model),
		VersionID:       f.VersionID,
		ParentVersionID: f.ParentVersionID,
		ChangeReason:    f.ChangeReason,
	}
	if f.EffectiveDate != "" {
		effective, err := time.Parse(dateLayout, f.EffectiveDate)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_date %q: %w", f.EffectiveDate, err)
		}
		set.EffectiveDate = effective
	}

	for i, p := range f.Parameters {
		switch {
		case p.Name == "":
			return nil, fmt.Errorf("parameter %d has no name", i+1)
		case p.Value != nil && p.Flag != nil:
			return nil, fmt.Errorf("parameter %s sets both value and flag", p.Name)
		case p.Flag != nil:
			set.Parameters = append(set.Parameters, domain.Parameter{Name: p.Name, Kind: domain.KindBoolean, Flag: *p.Flag})
		case p.Value != nil:
			set.Parameters = append(set.Parameters, domain.Parameter{Name: p.Name, Kind: domain.KindNumeric, Value: *p.Value})
		default:
			return nil, fmt.Errorf("parameter %s needs a value or a flag", p.Name)
		}
	}
	return set, nil
}

// MarshalSet encodes the content of a parameter set in the file layout
func MarshalSet(set *domain.ParameterSet) ([]byte, error) {
	f := setFile{
		Model:           string(set.ModelName),
		VersionID:       set.VersionID,
		ParentVersionID: set.ParentVersionID,
		ChangeReason:    set.ChangeReason,
	}
	if !set.EffectiveDate.IsZero() {
		f.EffectiveDate = set.EffectiveDate.Format(dateLayout)
	}
	for _, p := range set.Parameters {
		pf := paramFile{Name: p.Name}
		if p.Kind == domain.KindBoolean {
			b := p.Flag
			pf.Flag = &b
		} else {
			v := p.Value
			pf.Value = &v
		}
		f.Parameters = append(f.Parameters, pf)
	}
	return yaml.Marshal(&f)
}
