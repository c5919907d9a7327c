package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zkpermit/zkpermit-go/config"
)

// Collection names. One durable record set per entity.
const (
	CollectionUsers            = "users"
	CollectionRegisterRequests = "registerRequests"
	CollectionAccessRequests   = "accessRequests"
	CollectionProjects         = "projects"
	CollectionPublicKeys       = "publicKeys"
	CollectionChallenges       = "challenges"
)

const opTimeout = 5 * time.Second

// Connection is a mongo client bound to the mirror database.
type Connection struct {
	*mongo.Client
	dbName string
}

// Connect establishes a connection to the mongo db.
func Connect(ctx context.Context, cfg *config.Config) (*Connection, error) {
	if cfg.MongoURL == "" {
		return nil, fmt.Errorf("set ZKPERMIT_MONGO_URL before running")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, err
	}
	return &Connection{Client: client, dbName: cfg.DatabaseName}, nil
}

// Collection returns a handle on a named collection of the mirror database.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.Database(c.dbName).Collection(name)
}

// EnsureIndexes creates the unique indexes the write paths rely on for
// duplicate detection (register requests, public keys, challenges, users
// by address, access requests by their natural triple).
func (c *Connection) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	byAddress := mongo.IndexModel{Keys: bson.D{{Key: "address", Value: 1}}, Options: unique}

	for _, name := range []string{
		CollectionUsers, CollectionRegisterRequests, CollectionPublicKeys, CollectionChallenges,
	} {
		if _, err := c.Collection(name).Indexes().CreateOne(ctx, byAddress); err != nil {
			return err
		}
	}

	triple := mongo.IndexModel{
		Keys: bson.D{
			{Key: "endUserAddress", Value: 1},
			{Key: "researchInstitutionManagerAddress", Value: 1},
			{Key: "project", Value: 1},
		},
		Options: unique,
	}
	_, err := c.Collection(CollectionAccessRequests).Indexes().CreateOne(ctx, triple)
	return err
}

// FindOne decodes a single document matching the filter into out.
func (c *Connection) FindOne(collectionName string, filter bson.M, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.Collection(collectionName).FindOne(ctx, filter).Decode(out)
}

// InsertOne inserts the provided document into the provided collection.
func (c *Connection) InsertOne(collectionName string, data interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := c.Collection(collectionName).InsertOne(ctx, data)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

// UpsertOne applies a $set of data to the single document matching filter,
// inserting it when absent.
func (c *Connection) UpsertOne(collectionName string, filter bson.M, data bson.M) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	opts := options.Update().SetUpsert(true)
	res, err := c.Collection(collectionName).UpdateOne(ctx, filter, bson.M{"$set": data}, opts)
	if err != nil {
		return nil, err
	}
	return res.UpsertedID, nil
}

// Upsert applies the given update document verbatim (the caller controls
// the operators, e.g. $setOnInsert) to the single document matching
// filter, inserting when absent.
func (c *Connection) Upsert(collectionName string, filter bson.M, update bson.M) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	opts := options.Update().SetUpsert(true)
	res, err := c.Collection(collectionName).UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return nil, err
	}
	return res.UpsertedID, nil
}

// UpdateOne applies the given update document to the single document
// matching filter. Returns the number of matched documents so callers can
// detect a missing entity.
func (c *Connection) UpdateOne(collectionName string, filter bson.M, update bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := c.Collection(collectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// UpdateMany applies the given update document to every document matching
// the filter. Returns the number of matched documents.
func (c *Connection) UpdateMany(collectionName string, filter bson.M, update bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := c.Collection(collectionName).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// DeleteOne removes the single document matching the filter. Returns the
// number of deleted documents.
func (c *Connection) DeleteOne(collectionName string, filter bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := c.Collection(collectionName).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// FindDocs decodes every document matching filter into the slice pointed to
// by out, honoring limit/skip/sort.
func (c *Connection) FindDocs(collectionName string, filter bson.M, limit, skip int64, sort bson.D, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	opts := &options.FindOptions{}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := c.Collection(collectionName).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	return cur.All(ctx, out)
}

// CountCollectionDocs returns the number of records matching the filter.
func (c *Connection) CountCollectionDocs(collectionName string, filter bson.M) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.Collection(collectionName).CountDocuments(ctx, filter)
}

// IsDuplicate reports whether err came from violating a unique index.
func IsDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNoDocuments reports whether err means no document matched.
func IsNoDocuments(err error) bool {
	return err == mongo.ErrNoDocuments
}
