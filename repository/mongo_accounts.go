package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	guardian "github.com/goliatone/go-guardian"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultAccountsCollection = "accounts"
	connectTimeout            = 15 * time.Second
)

// MongoAccountStore keeps accounts as documents. Soft deleted documents
// carry deleted_at and are excluded from every lookup and update.
type MongoAccountStore struct {
	coll   *mongo.Collection
	now    func() time.Time
	logger guardian.Logger
}

var _ guardian.AccountStore = (*MongoAccountStore)(nil)

// MongoOption customizes a MongoAccountStore
type MongoOption func(*MongoAccountStore)

// WithMongoClock injects the clock used for timestamps
func WithMongoClock(clock func() time.Time) MongoOption {
	return func(s *MongoAccountStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithMongoLogger overrides the store logger
func WithMongoLogger(logger guardian.Logger) MongoOption {
	return func(s *MongoAccountStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ConnectMongo dials uri and checks the primary is reachable
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, guardian.NewInternalError(err, "failed to connect to mongo")
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, guardian.NewInternalError(err, "mongo unreachable")
	}
	return client, nil
}

// NewMongoAccountStore returns a store over coll. Call EnsureIndexes before
// serving requests.
func NewMongoAccountStore(coll *mongo.Collection, opts ...MongoOption) *MongoAccountStore {
	s := &MongoAccountStore{
		coll:   coll,
		now:    time.Now,
		logger: guardian.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureIndexes creates the unique identity indexes. Sparse indexes let
// accounts omit any identity they do not use.
func (s *MongoAccountStore) EnsureIndexes(ctx context.Context) error {
	models := make([]mongo.IndexModel, 0, 3)
	for _, field := range []string{"email", "username", "mobile"} {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_" + field),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return guardian.NewInternalError(err, "failed to create account indexes")
	}
	s.logger.Info("account indexes ensured", "collection", s.coll.Name())
	return nil
}

func live(filter bson.M) bson.M {
	filter["deleted_at"] = bson.M{"$exists": false}
	return filter
}

func (s *MongoAccountStore) FindByIdentity(ctx context.Context, identity string) (*guardian.Account, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, guardian.NewNotFoundError(identity)
	}
	return s.findOne(ctx, identity, live(bson.M{"$or": bson.A{
		bson.M{"email": identity},
		bson.M{"username": identity},
		bson.M{"mobile": identity},
	}}))
}

func (s *MongoAccountStore) FindByID(ctx context.Context, id string) (*guardian.Account, error) {
	return s.findOne(ctx, id, live(bson.M{"_id": id}))
}

func (s *MongoAccountStore) findOne(ctx context.Context, key string, filter bson.M) (*guardian.Account, error) {
	account := new(guardian.Account)
	err := s.coll.FindOne(ctx, filter).Decode(account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, guardian.NewNotFoundError(key)
	}
	if err != nil {
		s.logger.Error("account store read failed", "key", key, "error", err)
		return nil, guardian.NewInternalError(err, "failed to read account")
	}
	return account, nil
}

func (s *MongoAccountStore) Create(ctx context.Context, cmd guardian.CreateAccountCommand) (*guardian.Account, error) {
	account := guardian.NewAccountFromCommand(cmd)
	if !account.HasIdentity() {
		return nil, guardian.NewValidationError(guardian.MsgMissingIdentity, nil)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, guardian.NewConflictError(guardian.MsgIdentityTaken)
		}
		return nil, guardian.NewInternalError(err, "failed to create account")
	}
	return account, nil
}

func (s *MongoAccountStore) Lock(ctx context.Context, id string) (bool, error) {
	now := s.now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id, "locked": false}),
		bson.M{"$set": bson.M{"locked": true, "locked_at": now, "updated_at": now}},
	)
	return s.compareAndSetResult(ctx, id, res, err, guardian.MsgAlreadyLocked)
}

func (s *MongoAccountStore) Unlock(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id, "locked": true}),
		bson.M{
			"$set":   bson.M{"locked": false, "updated_at": s.now().UTC()},
			"$unset": bson.M{"locked_at": ""},
		},
	)
	return s.compareAndSetResult(ctx, id, res, err, guardian.MsgNotLocked)
}

func (s *MongoAccountStore) Delete(ctx context.Context, id string, hard bool) (bool, error) {
	if hard {
		res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return false, guardian.NewInternalError(err, "failed to delete account")
		}
		if res.DeletedCount == 0 {
			return false, guardian.NewNotFoundError(id)
		}
		return true, nil
	}

	now := s.now().UTC()
	res, err := s.coll.UpdateOne(ctx, live(bson.M{"_id": id}), bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}})
	if err != nil {
		return false, guardian.NewInternalError(err, "failed to delete account")
	}
	return matched(res, id)
}

func (s *MongoAccountStore) RequireNewPassword(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"require_new_password": true, "updated_at": s.now().UTC()}},
	)
	if err != nil {
		return false, guardian.NewInternalError(err, "failed to require new password")
	}
	return matched(res, id)
}

func (s *MongoAccountStore) SetPassword(ctx context.Context, id, passwordHash string) (bool, error) {
	now := s.now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id}),
		bson.M{"$set": bson.M{
			"password_hash":        passwordHash,
			"require_new_password": false,
			"password_changed_at":  now,
			"updated_at":           now,
		}},
	)
	if err != nil {
		return false, guardian.NewInternalError(err, "failed to set password")
	}
	return matched(res, id)
}

func (s *MongoAccountStore) ConfirmEmail(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id}),
		bson.M{
			"$set":   bson.M{"updated_at": s.now().UTC()},
			"$unset": bson.M{"unconfirmed_email": ""},
		},
	)
	if err != nil {
		return false, guardian.NewInternalError(err, "failed to confirm email")
	}
	return matched(res, id)
}

func (s *MongoAccountStore) TrackLogin(ctx context.Context, id string) error {
	_, err := s.coll.UpdateOne(ctx,
		live(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"last_login_at": s.now().UTC()}},
	)
	if err != nil {
		return guardian.NewInternalError(err, "failed to track login")
	}
	return nil
}

func (s *MongoAccountStore) Ping(ctx context.Context) error {
	if err := s.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return guardian.NewInternalError(err, "database unreachable")
	}
	return nil
}

func (s *MongoAccountStore) compareAndSetResult(ctx context.Context, id string, res *mongo.UpdateResult, err error, conflictMsg string) (bool, error) {
	if err != nil {
		return false, guardian.NewInternalError(err, "failed to update account")
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, guardian.NewConflictError(conflictMsg)
}

func matched(res *mongo.UpdateResult, id string) (bool, error) {
	if res.MatchedCount == 0 {
		return false, guardian.NewNotFoundError(id)
	}
	return true, nil
}
