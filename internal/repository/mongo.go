package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pwannenmacher/ConfReview/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	usersCollection       = "users"
	conferencesCollection = "conferences"
	papersCollection      = "papers"
	reviewsCollection     = "reviews"
)

// NewMongoStore creates a store backed by MongoDB and ensures its indexes
func NewMongoStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	if err := EnsureMongoIndexes(ctx, db); err != nil {
		return nil, err
	}
	return &Store{
		Users:       &MongoUserRepository{coll: db.Collection(usersCollection)},
		Conferences: &MongoConferenceRepository{coll: db.Collection(conferencesCollection)},
		Papers: &MongoPaperRepository{
			coll:    db.Collection(papersCollection),
			reviews: db.Collection(reviewsCollection),
		},
		Reviews: &MongoReviewRepository{coll: db.Collection(reviewsCollection)},
	}, nil
}

var (
	_ UserRepository       = (*MongoUserRepository)(nil)
	_ ConferenceRepository = (*MongoConferenceRepository)(nil)
	_ PaperRepository      = (*MongoPaperRepository)(nil)
	_ ReviewRepository     = (*MongoReviewRepository)(nil)
)

// EnsureMongoIndexes creates the unique and lookup indexes the store relies on
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		conferencesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "chairs", Value: 1}}},
		},
		papersCollection: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "title", Value: 1}}},
			{Keys: bson.D{{Key: "conference_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "authors", Value: 1}}},
			{Keys: bson.D{{Key: "coauthors", Value: 1}}},
		},
		reviewsCollection: {
			{Keys: bson.D{{Key: "paper_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for name, specs := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, kind, key string) (*T, error) {
	var doc T
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return &doc, nil
}

func findMany[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions, kind string) ([]*T, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	var docs []*T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return docs, nil
}

func insert(ctx context.Context, coll *mongo.Collection, doc any, kind, key string) error {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s %s: %w", kind, key, ErrDuplicate)
		}
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return nil
}

// replaceVersioned swaps the stored document for doc only while the stored
// version still equals version
func replaceVersioned(ctx context.Context, coll *mongo.Collection, kind, id string, version int64, doc any) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrDuplicate)
		}
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, ErrVersionConflict)
}

func deleteByID(ctx context.Context, coll *mongo.Collection, kind, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// MongoUserRepository stores users in MongoDB
type MongoUserRepository struct {
	coll *mongo.Collection
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	doc := user.Clone()
	doc.Version = 1
	if err := insert(ctx, r.coll, doc, "user", user.Username); err != nil {
		return err
	}
	user.Version = 1
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return findOne[models.User](ctx, r.coll, bson.M{"_id": id}, "user", id)
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return findOne[models.User](ctx, r.coll, bson.M{"username": username}, "user", username)
}

func (r *MongoUserRepository) ListByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findMany[models.User](ctx, r.coll, bson.M{"_id": bson.M{"$in": ids}}, options.Find(), "users")
}

func (r *MongoUserRepository) Update(ctx context.Context, user *models.User) error {
	next := user.Clone()
	next.Version = user.Version + 1
	if err := replaceVersioned(ctx, r.coll, "user", user.ID, user.Version, next); err != nil {
		return err
	}
	user.Version = next.Version
	return nil
}

// MongoConferenceRepository stores conferences in MongoDB
type MongoConferenceRepository struct {
	coll *mongo.Collection
}

func (r *MongoConferenceRepository) Create(ctx context.Context, conf *models.Conference) error {
	doc := conf.Clone()
	doc.Version = 1
	if err := insert(ctx, r.coll, doc, "conference", conf.Name); err != nil {
		return err
	}
	conf.Version = 1
	return nil
}

func (r *MongoConferenceRepository) GetByID(ctx context.Context, id string) (*models.Conference, error) {
	return findOne[models.Conference](ctx, r.coll, bson.M{"_id": id}, "conference", id)
}

func (r *MongoConferenceRepository) Update(ctx context.Context, conf *models.Conference) error {
	next := conf.Clone()
	next.Version = conf.Version + 1
	if err := replaceVersioned(ctx, r.coll, "conference", conf.ID, conf.Version, next); err != nil {
		return err
	}
	conf.Version = next.Version
	return nil
}

func (r *MongoConferenceRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.coll, "conference", id)
}

func (r *MongoConferenceRepository) ListByChair(ctx context.Context, userID string) ([]*models.Conference, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	return findMany[models.Conference](ctx, r.coll, bson.M{"chairs": userID}, opts, "conferences")
}

// MongoPaperRepository stores papers in MongoDB
type MongoPaperRepository struct {
	coll    *mongo.Collection
	reviews *mongo.Collection
}

func (r *MongoPaperRepository) Create(ctx context.Context, paper *models.Paper) error {
	doc := paper.Clone()
	doc.Version = 1
	if err := insert(ctx, r.coll, doc, "paper", paper.ID); err != nil {
		return err
	}
	paper.Version = 1
	return nil
}

func (r *MongoPaperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	return findOne[models.Paper](ctx, r.coll, bson.M{"_id": id}, "paper", id)
}

func (r *MongoPaperRepository) Update(ctx context.Context, paper *models.Paper) error {
	next := paper.Clone()
	next.Version = paper.Version + 1
	if err := replaceVersioned(ctx, r.coll, "paper", paper.ID, paper.Version, next); err != nil {
		return err
	}
	paper.Version = next.Version
	return nil
}

// Delete removes the paper, then its reviews
func (r *MongoPaperRepository) Delete(ctx context.Context, id string) error {
	if err := deleteByID(ctx, r.coll, "paper", id); err != nil {
		return err
	}
	if _, err := r.reviews.DeleteMany(ctx, bson.M{"paper_id": id}); err != nil {
		return fmt.Errorf("failed to delete reviews of paper %s: %w", id, err)
	}
	return nil
}

func byTitle() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})
}

func (r *MongoPaperRepository) ListByState(ctx context.Context, state models.PaperState) ([]*models.Paper, error) {
	return findMany[models.Paper](ctx, r.coll, bson.M{"state": state}, byTitle(), "papers")
}

func (r *MongoPaperRepository) ListByConference(ctx context.Context, conferenceID string, state models.PaperState) ([]*models.Paper, error) {
	filter := bson.M{"conference_id": conferenceID, "state": state}
	return findMany[models.Paper](ctx, r.coll, filter, byTitle(), "papers")
}

func (r *MongoPaperRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.Paper, error) {
	filter := bson.M{"$or": bson.A{bson.M{"authors": userID}, bson.M{"coauthors": userID}}}
	return findMany[models.Paper](ctx, r.coll, filter, byTitle(), "papers")
}

// MongoReviewRepository stores reviews in MongoDB
type MongoReviewRepository struct {
	coll *mongo.Collection
}

func (r *MongoReviewRepository) Create(ctx context.Context, review *models.Review) error {
	return insert(ctx, r.coll, review, "review for paper", review.PaperID)
}

func (r *MongoReviewRepository) ListByPaper(ctx context.Context, paperID string) ([]*models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findMany[models.Review](ctx, r.coll, bson.M{"paper_id": paperID}, opts, "reviews")
}
