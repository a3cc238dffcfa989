// Package catalog provides read-only access to the question records rooms draw from.
package catalog

import (
	"context"
	"errors"

	"github.com/mcdev12/trivia/go/internal/models"
)

// ErrQuestionNotFound is returned by GetByID for unknown ids.
var ErrQuestionNotFound = errors.New("question not found")

// Catalog is implemented by every question source.
type Catalog interface {
	ListIDs(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, id string) (models.Question, error)
}
