package output

import (
	"encoding/json"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// JSONFormatter renders the result as JSON
type JSONFormatter struct {
	Pretty bool
}

func (j JSONFormatter) Name() string { return "json" }

func (j JSONFormatter) Format(res *domain.CalculationResult) ([]byte, error) {
	if j.Pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}
