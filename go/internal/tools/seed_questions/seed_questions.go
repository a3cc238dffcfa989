package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/dbconfig"
	"github.com/mcdev12/trivia/go/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type summary struct {
	total, inserted, skipped, errs int
}

func main() {
	target := flag.String("target", "postgres", "postgres or mongo")
	file := flag.String("file", "", "YAML question file (default: built-in questions)")
	flag.Parse()

	_ = godotenv.Load()

	// 1) Load the questions
	cat, err := catalog.LoadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load questions: %v\n", err)
		os.Exit(1)
	}
	questions, err := collect(context.Background(), cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collect questions: %v\n", err)
		os.Exit(1)
	}

	// 2) Upsert into the chosen backend
	var s summary
	switch *target {
	case "postgres":
		s, err = seedPostgres(context.Background(), questions)
	case "mongo":
		s, err = seedMongo(context.Background(), questions)
	default:
		err = fmt.Errorf("unknown target %q", *target)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Print summary
	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		s.total, s.inserted, s.skipped, s.errs,
	)
}

func collect(ctx context.Context, cat *catalog.Static) ([]models.Question, error) {
	ids, err := cat.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	qs := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		q, err := cat.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func seedPostgres(ctx context.Context, questions []models.Question) (summary, error) {
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return summary{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, catalog.Schema); err != nil {
		return summary{}, fmt.Errorf("create schema: %w", err)
	}

	s := summary{total: len(questions)}
	for _, q := range questions {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO questions (id, text, correct_option, options)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING
        `, q.ID, q.Text, q.CorrectOption, q.Options)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting question %s: %v\n", q.ID, err)
			s.errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			s.inserted++
		} else {
			s.skipped++
		}
	}
	return s, nil
}

func seedMongo(ctx context.Context, questions []models.Question) (summary, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	database := os.Getenv("MONGO_DB")
	if database == "" {
		database = "trivia"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return summary{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	coll := client.Database(database).Collection(catalog.QuestionsCollection)
	s := summary{total: len(questions)}
	for _, q := range questions {
		res, err := coll.UpdateOne(ctx,
			bson.M{"_id": q.ID},
			bson.M{"$setOnInsert": bson.M{
				"text":           q.Text,
				"correct_option": q.CorrectOption,
				"options":        q.Options,
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting question %s: %v\n", q.ID, err)
			s.errs++
			continue
		}
		if res.UpsertedCount == 1 {
			s.inserted++
		} else {
			s.skipped++
		}
	}
	return s, nil
}
