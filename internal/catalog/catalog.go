// Package catalog loads the static trip configuration: the family roster and
// the quiz question definitions. Both are immutable once loaded.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/victornm/familytrip/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type Catalog struct {
	roster    domain.Roster
	questions []domain.Question
	byID      map[int]int
}

type file struct {
	Operator  int                  `yaml:"operator"`
	Roster    []domain.Participant `yaml:"roster"`
	Questions []domain.Question    `yaml:"questions"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = b
	}

	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal: %w", err)
	}

	return New(domain.Roster{Participants: f.Roster, Operator: f.Operator}, f.Questions)
}

// New validates and indexes a roster and question set.
func New(roster domain.Roster, questions []domain.Question) (*Catalog, error) {
	if roster.Size() == 0 {
		return nil, fmt.Errorf("catalog: roster is empty")
	}
	if !roster.Has(roster.Operator) {
		return nil, fmt.Errorf("catalog: operator %d is not in the roster", roster.Operator)
	}

	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })

	byID := make(map[int]int, len(qs))
	for i, q := range qs {
		if q.ID <= 0 {
			return nil, fmt.Errorf("catalog: question id must be positive: %d", q.ID)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate question id %d", q.ID)
		}
		if len(q.Answers) < 2 {
			return nil, fmt.Errorf("catalog: question %d needs at least two answers", q.ID)
		}
		for k := range q.Answers {
			if k == "" {
				return nil, fmt.Errorf("catalog: question %d has an empty answer key", q.ID)
			}
		}
		if !q.HasAnswer(q.CorrectAnswer) {
			return nil, fmt.Errorf("catalog: question %d: correct answer %q is not an option", q.ID, q.CorrectAnswer)
		}
		byID[q.ID] = i
	}

	return &Catalog{roster: roster, questions: qs, byID: byID}, nil
}

func (c *Catalog) Roster() domain.Roster { return c.roster }

// Questions returns the questions ordered by id. The slice must not be modified.
func (c *Catalog) Questions() []domain.Question { return c.questions }

func (c *Catalog) Question(id int) (domain.Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Question{}, false
	}
	return c.questions[i], true
}
