package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/trivia/go/internal/models"
)

// Schema is the DDL for the questions table.
//
//go:embed schema.sql
var Schema string

// Postgres reads questions from the questions table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan question ids: %w", err)
	}
	return ids, nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (models.Question, error) {
	var q models.Question
	err := p.pool.QueryRow(ctx,
		`SELECT id, text, correct_option, options FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Text, &q.CorrectOption, &q.Options)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Question{}, fmt.Errorf("%s: %w", id, ErrQuestionNotFound)
	}
	if err != nil {
		return models.Question{}, fmt.Errorf("get question %s: %w", id, err)
	}
	return q, nil
}

var _ Catalog = (*Postgres)(nil)
