// Package mongostore is the MongoDB backend. Tasks, tests, syllabuses and
// accounts live in their own collections with an owner field on every document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studyplan/internal/domain"
)

const DefaultDatabase = "studyplan"

type Config struct {
	URI      string
	Database string
}

type Store struct {
	client   *mongo.Client
	tasks    *mongo.Collection
	tests    *mongo.Collection
	syllabus *mongo.Collection
	accounts *mongo.Collection
}

type taskDoc struct {
	ID              string    `bson:"_id"`
	Owner           string    `bson:"owner"`
	Subject         string    `bson:"subject"`
	Topic           string    `bson:"topic"`
	ActivityType    string    `bson:"activityType"`
	ScheduledAt     time.Time `bson:"scheduledAt"`
	DurationMinutes int       `bson:"durationMinutes"`
	Notes           string    `bson:"notes,omitempty"`
	Completed       bool      `bson:"completed"`
}

type testDoc struct {
	ID        string `bson:"_id"`
	Owner     string `bson:"owner"`
	TestName  string `bson:"testName"`
	StartDate string `bson:"startDate"`
	EndDate   string `bson:"endDate"`
	Syllabus  string `bson:"syllabus,omitempty"`
}

type syllabusDoc struct {
	Owner     string    `bson:"_id"`
	Topics    []string  `bson:"topics"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type accountDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// Open connects, pings and ensures the owner indexes exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri: %w", domain.ErrNotConfigured)
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	dbh := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		tasks:    dbh.Collection("tasks"),
		tests:    dbh.Collection("tests"),
		syllabus: dbh.Collection("syllabuses"),
		accounts: dbh.Collection("accounts"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "scheduledAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("tasks index: %w", err)
	}
	if _, err := s.tests.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "startDate", Value: 1}},
	}); err != nil {
		return fmt.Errorf("tests index: %w", err)
	}
	if _, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("accounts index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

func toTaskDoc(t domain.Task) taskDoc {
	return taskDoc{
		ID:              t.ID,
		Owner:           t.Owner,
		Subject:         t.Subject,
		Topic:           t.Topic,
		ActivityType:    string(t.ActivityType),
		ScheduledAt:     t.ScheduledAt.UTC(),
		DurationMinutes: t.DurationMinutes,
		Notes:           t.Notes,
		Completed:       t.Completed,
	}
}

func (d taskDoc) task() domain.Task {
	return domain.Task{
		ID:              d.ID,
		Owner:           d.Owner,
		Subject:         d.Subject,
		Topic:           d.Topic,
		ActivityType:    domain.ActivityType(d.ActivityType),
		ScheduledAt:     d.ScheduledAt.UTC(),
		DurationMinutes: d.DurationMinutes,
		Notes:           d.Notes,
		Completed:       d.Completed,
	}
}

func (s *Store) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.tasks.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.task())
	}
	return res, nil
}

func (s *Store) GetTask(ctx context.Context, owner, id string) (domain.Task, error) {
	var d taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&d); err != nil {
		return domain.Task{}, notFound(err)
	}
	return d.task(), nil
}

func (s *Store) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := s.tasks.InsertOne(ctx, toTaskDoc(t))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrConflict)
	}
	return err
}

func (s *Store) ReplaceTask(ctx context.Context, t domain.Task) error {
	res, err := s.tasks.ReplaceOne(ctx, bson.M{"_id": t.ID, "owner": t.Owner}, toTaskDoc(t))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, owner, id string) error {
	_, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	return err
}

// ToggleTask negates completed with an aggregation-pipeline update so the read
// and write happen in one server-side operation.
func (s *Store) ToggleTask(ctx context.Context, owner, id string) (domain.Task, error) {
	flip := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}}}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d taskDoc
	if err := s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": id, "owner": owner}, flip, opts).Decode(&d); err != nil {
		return domain.Task{}, notFound(err)
	}
	return d.task(), nil
}

func (d testDoc) test() domain.Test {
	return domain.Test{ID: d.ID, Owner: d.Owner, TestName: d.TestName, StartDate: d.StartDate, EndDate: d.EndDate, Syllabus: d.Syllabus}
}

func (s *Store) ListTests(ctx context.Context, owner string) ([]domain.Test, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startDate", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.tests.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	var docs []testDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]domain.Test, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.test())
	}
	return res, nil
}

func (s *Store) GetTest(ctx context.Context, owner, id string) (domain.Test, error) {
	var d testDoc
	if err := s.tests.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&d); err != nil {
		return domain.Test{}, notFound(err)
	}
	return d.test(), nil
}

// InsertTests writes the batch inside a multi-document transaction, which
// requires a replica set or sharded cluster.
func (s *Store) InsertTests(ctx context.Context, tests []domain.Test) error {
	if len(tests) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(tests))
	for _, t := range tests {
		docs = append(docs, testDoc{ID: t.ID, Owner: t.Owner, TestName: t.TestName, StartDate: t.StartDate, EndDate: t.EndDate, Syllabus: t.Syllabus})
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.tests.InsertMany(sc, docs)
	})
	return err
}

func (s *Store) DeleteTest(ctx context.Context, owner, id string) error {
	_, err := s.tests.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	return err
}

func (s *Store) DeleteTestsByOwner(ctx context.Context, owner string) (int, error) {
	res, err := s.tests.DeleteMany(ctx, bson.M{"owner": owner})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *Store) GetSyllabus(ctx context.Context, owner string) (domain.SyllabusTopics, error) {
	var d syllabusDoc
	if err := s.syllabus.FindOne(ctx, bson.M{"_id": owner}).Decode(&d); err != nil {
		return domain.SyllabusTopics{Owner: owner}, notFound(err)
	}
	topics := d.Topics
	if topics == nil {
		topics = []string{}
	}
	return domain.SyllabusTopics{Owner: d.Owner, Topics: topics, UpdatedAt: d.UpdatedAt.UTC()}, nil
}

func (s *Store) PutSyllabus(ctx context.Context, syl domain.SyllabusTopics) error {
	topics := syl.Topics
	if topics == nil {
		topics = []string{}
	}
	doc := syllabusDoc{Owner: syl.Owner, Topics: topics, UpdatedAt: syl.UpdatedAt.UTC()}
	_, err := s.syllabus.ReplaceOne(ctx, bson.M{"_id": syl.Owner}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := s.accounts.InsertOne(ctx, accountDoc{ID: a.ID, Email: a.Email, PasswordHash: a.PasswordHash, CreatedAt: a.CreatedAt.UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("account %s: %w", a.Email, domain.ErrConflict)
	}
	return err
}

func (d accountDoc) account() domain.Account {
	return domain.Account{ID: d.ID, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt.UTC()}
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	var d accountDoc
	if err := s.accounts.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&d); err != nil {
		return domain.Account{}, notFound(err)
	}
	return d.account(), nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var d accountDoc
	if err := s.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return domain.Account{}, notFound(err)
	}
	return d.account(), nil
}
