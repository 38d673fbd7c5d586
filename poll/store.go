package poll

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	log "github.com/sirupsen/logrus"
)

// Store is the single source of truth for poll state. Save is a full
// replace, last write wins; callers serialize writes per poll (see locks.go).
type Store interface {
	Create(ctx context.Context, p *Poll) (primitive.ObjectID, error)
	Get(ctx context.Context, id string) (*Poll, error)
	Save(ctx context.Context, p *Poll) error
	ListOpen(ctx context.Context) ([]*Poll, error)
}

type MongoStore struct {
	polls *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{polls: db.Collection("polls")}
}

// ParseID validates the 24 character hex form of a poll id.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

func (s *MongoStore) Create(ctx context.Context, p *Poll) (primitive.ObjectID, error) {
	res, err := s.polls.InsertOne(ctx, p)
	if err != nil {
		return primitive.NilObjectID, err
	}
	p.ID = res.InsertedID.(primitive.ObjectID)
	return p.ID, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Poll, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	p := &Poll{}
	err = retryOnce(func() error {
		return s.polls.FindOne(ctx, bson.M{"_id": oid}).Decode(p)
	})
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *MongoStore) Save(ctx context.Context, p *Poll) error {
	return retryOnce(func() error {
		_, err := s.polls.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
		return err
	})
}

func (s *MongoStore) ListOpen(ctx context.Context) ([]*Poll, error) {
	cur, err := s.polls.Find(ctx, bson.M{"is_closed": false})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var open []*Poll
	if err := cur.All(ctx, &open); err != nil {
		return nil, err
	}
	return open, nil
}

// retryOnce reruns f a single time on failure. Transient store errors get
// one second chance; persistent ones surface to the caller.
func retryOnce(f func() error) error {
	err := f()
	if err == nil || err == mongo.ErrNoDocuments {
		return err
	}
	log.Warnf("mongo, retrying once, err=%v", err)
	return f()
}
