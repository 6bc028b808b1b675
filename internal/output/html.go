package output

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// HTMLFormatter produces a standalone HTML report
type HTMLFormatter struct{}

func (h HTMLFormatter) Name() string { return "html" }

//go:embed templates/result.html.tmpl
var htmlTemplateSource string

var htmlTemplate = template.Must(template.New("result").Funcs(template.FuncMap{
	"amount": FormatAmount,
	"keys":   sortedKeys,
}).Parse(htmlTemplateSource))

func (h HTMLFormatter) Format(res *domain.CalculationResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
