package auth

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/user"
)

// ChallengeStore keeps one outstanding nonce per address.
type ChallengeStore interface {
	// Put stores the nonce for an address, replacing any prior one.
	Put(ctx context.Context, address, nonce string) error

	// Get returns the pending nonce, or faults.ErrNoChallenge.
	Get(ctx context.Context, address string) (string, error)

	// Consume deletes the challenge only if the stored nonce still equals
	// the one the caller observed, so a verify cannot erase a nonce issued
	// by a concurrent login attempt.
	Consume(ctx context.Context, address, nonce string) error
}

// KeyRegistry persists the first recovered public key per address.
// Writes are once-only: a second registration is silently ignored.
type KeyRegistry interface {
	Put(ctx context.Context, address, publicKey string) error
	Get(ctx context.Context, address string) (string, error)
}

type challengeDoc struct {
	Address   string `bson:"address"`
	Challenge string `bson:"challenge"`
}

// MongoChallengeStore is the mongo-backed ChallengeStore.
type MongoChallengeStore struct {
	conn *database.Connection
}

func NewMongoChallengeStore(conn *database.Connection) *MongoChallengeStore {
	return &MongoChallengeStore{conn: conn}
}

func (s *MongoChallengeStore) Put(_ context.Context, address, nonce string) error {
	address = user.NormalizeAddress(address)
	_, err := s.conn.UpsertOne(database.CollectionChallenges,
		bson.M{"address": address},
		bson.M{"address": address, "challenge": nonce})
	return err
}

func (s *MongoChallengeStore) Get(_ context.Context, address string) (string, error) {
	var doc challengeDoc
	err := s.conn.FindOne(database.CollectionChallenges,
		bson.M{"address": user.NormalizeAddress(address)}, &doc)
	if err != nil {
		if database.IsNoDocuments(err) {
			return "", faults.ErrNoChallenge
		}
		return "", err
	}
	return doc.Challenge, nil
}

func (s *MongoChallengeStore) Consume(_ context.Context, address, nonce string) error {
	deleted, err := s.conn.DeleteOne(database.CollectionChallenges,
		bson.M{"address": user.NormalizeAddress(address), "challenge": nonce})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return faults.ErrNoChallenge
	}
	return nil
}

type publicKeyDoc struct {
	Address   string `bson:"address"`
	PublicKey string `bson:"publicKey"`
}

// MongoKeyRegistry is the mongo-backed KeyRegistry. Write-once semantics
// come from the unique index on address.
type MongoKeyRegistry struct {
	conn *database.Connection
}

func NewMongoKeyRegistry(conn *database.Connection) *MongoKeyRegistry {
	return &MongoKeyRegistry{conn: conn}
}

func (r *MongoKeyRegistry) Put(_ context.Context, address, publicKey string) error {
	doc := publicKeyDoc{Address: user.NormalizeAddress(address), PublicKey: publicKey}
	if _, err := r.conn.InsertOne(database.CollectionPublicKeys, doc); err != nil {
		if database.IsDuplicate(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *MongoKeyRegistry) Get(_ context.Context, address string) (string, error) {
	var doc publicKeyDoc
	err := r.conn.FindOne(database.CollectionPublicKeys,
		bson.M{"address": user.NormalizeAddress(address)}, &doc)
	if err != nil {
		if database.IsNoDocuments(err) {
			return "", fmt.Errorf("%w: public key for %s", faults.ErrNotFound, address)
		}
		return "", err
	}
	return doc.PublicKey, nil
}
