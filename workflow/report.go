package workflow

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ariebrainware/educe-api/model"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`EDUCE Assessment Report

Child: {{.Child.Name}} ({{.Child.Age}} years old{{if .Child.Gender}}, {{.Child.Gender}}{{end}})
Psychologist: {{.Psychologist.Name}}, {{.Psychologist.Title}}
{{- if .Grade}}
Grade: {{.Grade}}
{{- end}}

Cognitive profile
  IQ score: {{.Scores.IQScore}}
  Verbal reasoning: {{.Scores.VerbalReasoning}}
  Numerical reasoning: {{.Scores.NumericalReasoning}}
  Spatial reasoning: {{.Scores.SpatialReasoning}}
  Memory: {{.Scores.MemoryScore}}
  Processing speed: {{.Scores.ProcessingSpeed}}

Personality
  Extroversion: {{.Scores.Extroversion}}
  Conscientiousness: {{.Scores.Conscientiousness}}
  Openness: {{.Scores.Openness}}
  Creativity: {{.Scores.Creativity}}
{{- if .Interests}}

Interests: {{join .Interests ", "}}
{{- end}}

Interactive test answers
{{- range .Answers}}
  [{{.Category}}] {{.Question}} -> {{.Answer}}
{{- end}}
{{- if .Observations}}

Observations
{{.Observations}}
{{- end}}
`))

type reportData struct {
	Child        model.Child
	Psychologist model.Psychologist
	Grade        string
	Scores       model.Scores
	Interests    []string
	Answers      []model.Answer
	Observations string
}

// ComposeReport renders the narrative report used when the psychologist
// submits scores without their own text.
func ComposeReport(child model.Child, psych model.Psychologist, result model.GameResult, in ReportInput) (string, error) {
	interests := in.Interests
	if len(interests) == 0 {
		interests = child.Interests
	}
	var b strings.Builder
	err := reportTemplate.Execute(&b, reportData{
		Child:        child,
		Psychologist: psych,
		Grade:        in.Grade,
		Scores:       in.Scores,
		Interests:    interests,
		Answers:      result.Answers,
		Observations: strings.TrimSpace(in.Observations),
	})
	if err != nil {
		return "", fmt.Errorf("failed to compose report: %w", err)
	}
	return b.String(), nil
}
