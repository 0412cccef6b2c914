package rulestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// RuleStore backed by MongoDB.
//
// Uses one collection for per-chat settings ({group_id, enabled}) and one collection per term list ({group_id, keyword}). Term documents written by older deployments may hold un-normalized or repeated keywords; reads normalize them and removals match on the normalized form.
type MongoRuleStore struct {
	Client    *mongo.Client
	Logger    *slog.Logger
	settings  *mongo.Collection
	blacklist *mongo.Collection
	whitelist *mongo.Collection
}

var _ RuleStore = (*MongoRuleStore)(nil)

func NewMongoRuleStore(ctx context.Context, uri, dbName string, logger *slog.Logger) (*MongoRuleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("antigcast").
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	// check mongodb connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}
	db := client.Database(dbName)
	s := &MongoRuleStore{
		Client:    client,
		Logger:    logger.With("component", "rulestore", "backend", "mongodb"),
		settings:  db.Collection("settings"),
		blacklist: db.Collection("blacklist"),
		whitelist: db.Collection("whitelist"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoRuleStore) ensureIndexes(ctx context.Context) error {
	if err := s.ensureUniqueIndex(ctx, s.settings, bson.D{{Key: "group_id", Value: 1}}); err != nil {
		return err
	}
	for _, coll := range []*mongo.Collection{s.blacklist, s.whitelist} {
		if err := s.ensureUniqueIndex(ctx, coll, bson.D{{Key: "group_id", Value: 1}, {Key: "keyword", Value: 1}}); err != nil {
			return err
		}
	}
	return nil
}

// Creates a unique index, falling back to a non-unique one when existing documents already violate it.
func (s *MongoRuleStore) ensureUniqueIndex(ctx context.Context, coll *mongo.Collection, keys bson.D) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	})
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("creating %s index: %w", coll.Name(), err)
	}
	s.Logger.Warn("existing documents prevent unique index, creating plain index instead", "collection", coll.Name(), "err", err)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
	if err != nil {
		return fmt.Errorf("creating %s index: %w", coll.Name(), err)
	}
	return nil
}

func (s *MongoRuleStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func (s *MongoRuleStore) terms(kind ListKind) *mongo.Collection {
	if kind == AllowList {
		return s.whitelist
	}
	return s.blacklist
}

func (s *MongoRuleStore) FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error) {
	rs := RuleSet{}

	raw, err := s.settings.FindOne(ctx, bson.M{"group_id": chatID}).Raw()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("fetching chat settings: %w", err)
	}
	if err == nil {
		enabled, ok := raw.Lookup("enabled").BooleanOK()
		if !ok {
			return nil, fmt.Errorf("%w: settings for chat %d have no boolean 'enabled'", ErrMalformedRecord, chatID)
		}
		rs.Enabled = enabled
	}

	rs.Denylist, err = s.listTerms(ctx, chatID, DenyList)
	if err != nil {
		return nil, err
	}
	rs.Allowlist, err = s.listTerms(ctx, chatID, AllowList)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *MongoRuleStore) listTerms(ctx context.Context, chatID int64, kind ListKind) ([]string, error) {
	coll := s.terms(kind)
	cur, err := coll.Find(ctx, bson.M{"group_id": chatID})
	if err != nil {
		return nil, fmt.Errorf("fetching %s terms: %w", kind, err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		kw, ok := cur.Current.Lookup("keyword").StringValueOK()
		if !ok {
			return nil, fmt.Errorf("%w: %s term for chat %d has no string 'keyword'", ErrMalformedRecord, kind, chatID)
		}
		out = append(out, kw)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("reading %s terms: %w", kind, err)
	}
	return NormalizeTerms(out), nil
}

func (s *MongoRuleStore) WriteEnabled(ctx context.Context, chatID int64, enabled bool) error {
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"group_id": chatID},
		bson.M{"$set": bson.M{"enabled": enabled, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("writing chat settings: %w", err)
	}
	return nil
}

func (s *MongoRuleStore) AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	// upsert instead of insert, so repeated adds don't create duplicate documents
	_, err = s.terms(kind).UpdateOne(ctx,
		bson.M{"group_id": chatID, "keyword": term},
		bson.M{"$setOnInsert": bson.M{"group_id": chatID, "keyword": term, "created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("adding %s term: %w", kind, err)
	}
	return nil
}

func (s *MongoRuleStore) RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	coll := s.terms(kind)
	cur, err := coll.Find(ctx, bson.M{"group_id": chatID}, options.Find().SetProjection(bson.M{"keyword": 1}))
	if err != nil {
		return fmt.Errorf("fetching %s terms: %w", kind, err)
	}
	defer cur.Close(ctx)

	var ids bson.A
	for cur.Next(ctx) {
		kw, ok := cur.Current.Lookup("keyword").StringValueOK()
		if !ok || !sameTerm(kw, term) {
			continue
		}
		// cursor buffers are reused between batches
		id := cur.Current.Lookup("_id")
		ids = append(ids, bson.RawValue{Type: id.Type, Value: append([]byte(nil), id.Value...)})
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("reading %s terms: %w", kind, err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("removing %s term: %w", kind, err)
	}
	return nil
}

// reports whether a stored keyword, possibly written without normalization, is the given normalized term
func sameTerm(stored, term string) bool {
	t, err := NormalizeTerm(stored)
	return err == nil && t == term
}
