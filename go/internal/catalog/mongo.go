package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/trivia/go/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// QuestionsCollection is the collection Mongo reads from and the seed tool writes to.
const QuestionsCollection = "questions"

// Mongo reads questions from a collection keyed by _id.
type Mongo struct {
	collection *mongo.Collection
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{collection: client.Database(database).Collection(QuestionsCollection)}
}

func (m *Mongo) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"_id": 1})
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode question ids: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (m *Mongo) GetByID(ctx context.Context, id string) (models.Question, error) {
	var q models.Question
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Question{}, fmt.Errorf("%s: %w", id, ErrQuestionNotFound)
	}
	if err != nil {
		return models.Question{}, fmt.Errorf("get question %s: %w", id, err)
	}
	return q, nil
}

var _ Catalog = (*Mongo)(nil)
