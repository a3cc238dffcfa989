package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/mcdev12/trivia/go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestions []byte

type questionFile struct {
	Questions []models.Question `yaml:"questions"`
}

// Static serves a fixed set of questions held in memory.
type Static struct {
	ids  []string
	byID map[string]models.Question
}

// NewStatic keeps the given order for ListIDs. Later duplicates replace earlier ones.
func NewStatic(questions []models.Question) *Static {
	s := &Static{byID: make(map[string]models.Question, len(questions))}
	for _, q := range questions {
		if _, dup := s.byID[q.ID]; !dup {
			s.ids = append(s.ids, q.ID)
		}
		s.byID[q.ID] = q
	}
	return s
}

// Parse reads a YAML question file and rejects malformed records.
func Parse(data []byte) ([]models.Question, error) {
	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}
	seen := make(map[string]bool, len(f.Questions))
	for i, q := range f.Questions {
		if !q.Valid() {
			return nil, fmt.Errorf("question %d (%q) is invalid", i, q.ID)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return f.Questions, nil
}

// DefaultQuestions returns the built-in seed.
func DefaultQuestions() []models.Question {
	qs, err := Parse(defaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("embedded questions: %v", err))
	}
	return qs
}

// LoadFile builds a Static catalog from a YAML file. An empty path yields the built-in seed.
func LoadFile(path string) (*Static, error) {
	if path == "" {
		return NewStatic(DefaultQuestions()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	qs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewStatic(qs), nil
}

func (s *Static) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.ids...), nil
}

func (s *Static) GetByID(ctx context.Context, id string) (models.Question, error) {
	if err := ctx.Err(); err != nil {
		return models.Question{}, err
	}
	q, ok := s.byID[id]
	if !ok {
		return models.Question{}, fmt.Errorf("%s: %w", id, ErrQuestionNotFound)
	}
	return q, nil
}

var _ Catalog = (*Static)(nil)
