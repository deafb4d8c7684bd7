package games

import (
	_ "embed"
	"fmt"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Question is one multiple choice question.
type Question struct {
	Text     string   `yaml:"text" json:"text"`
	Options  []string `yaml:"options" json:"options"`
	Correct  string   `yaml:"correct,omitempty" json:"-"`
	Category string   `yaml:"category" json:"category"`
}

// Game groups questions under a title shown to the child.
type Game struct {
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Type        string     `yaml:"type" json:"type"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

// Step is a question together with the game it belongs to.
type Step struct {
	GameTitle       string   `json:"game_title"`
	GameDescription string   `json:"game_description"`
	Question        Question `json:"question"`
}

// Catalog is the ordered list of games played in one session.
type Catalog struct {
	Games []Game `yaml:"games" json:"games"`
	steps []Step
}

// DefaultCatalog parses the embedded game catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse game catalog: %w", err)
	}
	if len(c.Games) == 0 {
		return nil, fmt.Errorf("game catalog has no games")
	}
	for _, g := range c.Games {
		if len(g.Questions) == 0 {
			return nil, fmt.Errorf("game %q has no questions", g.Title)
		}
		for _, q := range g.Questions {
			if q.Text == "" || len(q.Options) == 0 || q.Category == "" {
				return nil, fmt.Errorf("game %q has an incomplete question", g.Title)
			}
			if q.Correct != "" && !lo.Contains(q.Options, q.Correct) {
				return nil, fmt.Errorf("game %q: correct answer %q is not an option", g.Title, q.Correct)
			}
			c.steps = append(c.steps, Step{GameTitle: g.Title, GameDescription: g.Description, Question: q})
		}
	}
	return &c, nil
}

// Steps returns every question in play order.
func (c *Catalog) Steps() []Step {
	return c.steps
}

// Len is the number of questions in a session.
func (c *Catalog) Len() int {
	return len(c.steps)
}
