package access

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/user"
)

// MongoProjectDirectory is the mongo-backed ProjectDirectory.
type MongoProjectDirectory struct {
	conn *database.Connection
}

func NewMongoProjectDirectory(conn *database.Connection) *MongoProjectDirectory {
	return &MongoProjectDirectory{conn: conn}
}

func (d *MongoProjectDirectory) Create(_ context.Context, p Project) (string, error) {
	p.ID = primitive.NewObjectID().Hex()
	p.ResearchInstitutionManagerAddress = user.NormalizeAddress(p.ResearchInstitutionManagerAddress)
	if _, err := d.conn.InsertOne(database.CollectionProjects, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (d *MongoProjectDirectory) SetAddress(_ context.Context, id, address string) error {
	matched, err := d.conn.UpdateOne(database.CollectionProjects,
		bson.M{"_id": id}, bson.M{"$set": bson.M{"address": user.NormalizeAddress(address)}})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: project %s", faults.ErrNotFound, id)
	}
	return nil
}

func (d *MongoProjectDirectory) Get(_ context.Context, id string) (*Project, error) {
	var p Project
	if err := d.conn.FindOne(database.CollectionProjects, bson.M{"_id": id}, &p); err != nil {
		if database.IsNoDocuments(err) {
			return nil, fmt.Errorf("%w: project %s", faults.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (d *MongoProjectDirectory) GetByAddress(_ context.Context, address string) (*Project, error) {
	var p Project
	if err := d.conn.FindOne(database.CollectionProjects, bson.M{"address": user.NormalizeAddress(address)}, &p); err != nil {
		if database.IsNoDocuments(err) {
			return nil, fmt.Errorf("%w: project at %s", faults.ErrNotFound, address)
		}
		return nil, err
	}
	return &p, nil
}

func (d *MongoProjectDirectory) List(_ context.Context, page, limit int64, institution string) (*ProjectListing, error) {
	filter := bson.M{}
	if institution != "" {
		filter["researchInstitutionManagerAddress"] = user.NormalizeAddress(institution)
	}
	total, err := d.conn.CountCollectionDocs(database.CollectionProjects, filter)
	if err != nil {
		return nil, err
	}
	p := database.NewPage(page, limit, total)

	var projects []Project
	sort := bson.D{{Key: "title", Value: 1}}
	if err = d.conn.FindDocs(database.CollectionProjects, filter, p.Limit, p.Skip(), sort, &projects); err != nil {
		return nil, err
	}
	return &ProjectListing{Projects: projects, Page: p}, nil
}

// MongoRequestDirectory is the mongo-backed RequestDirectory.
type MongoRequestDirectory struct {
	conn *database.Connection
}

func NewMongoRequestDirectory(conn *database.Connection) *MongoRequestDirectory {
	return &MongoRequestDirectory{conn: conn}
}

func tripleFilter(endUser, institution, projectID string) bson.M {
	return bson.M{
		"endUserAddress":                    user.NormalizeAddress(endUser),
		"researchInstitutionManagerAddress": user.NormalizeAddress(institution),
		"project":                           projectID,
	}
}

func (d *MongoRequestDirectory) Create(_ context.Context, endUser, institution, projectID string) error {
	filter := tripleFilter(endUser, institution, projectID)
	// $setOnInsert keeps an existing triple untouched: creation is
	// idempotent and never resets decision flags.
	_, err := d.conn.Upsert(database.CollectionAccessRequests, filter, bson.M{
		"$setOnInsert": bson.M{
			"granted":           false,
			"revoked":           false,
			"rejected":          false,
			"pendingBC":         false,
			"encryptedPassword": "",
		},
	})
	return err
}

func (d *MongoRequestDirectory) Get(_ context.Context, endUser, institution, projectID string) (*Request, error) {
	var r Request
	err := d.conn.FindOne(database.CollectionAccessRequests, tripleFilter(endUser, institution, projectID), &r)
	if err != nil {
		if database.IsNoDocuments(err) {
			return nil, fmt.Errorf("%w: access request", faults.ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

func (d *MongoRequestDirectory) Grant(_ context.Context, endUser, institution, projectID string) error {
	return d.decide(endUser, institution, projectID, bson.M{
		"granted":   true,
		"revoked":   false,
		"pendingBC": false,
	})
}

func (d *MongoRequestDirectory) Revoke(_ context.Context, endUser, institution, projectID string) error {
	// Ciphertext must not linger once access is withdrawn.
	return d.decide(endUser, institution, projectID, bson.M{
		"granted":           false,
		"revoked":           true,
		"pendingBC":         false,
		"encryptedPassword": "",
	})
}

// decide applies a decision to a live (non-rejected) request. Rejection is
// terminal, so a rejected triple is as unreachable as a deleted one.
func (d *MongoRequestDirectory) decide(endUser, institution, projectID string, set bson.M) error {
	filter := tripleFilter(endUser, institution, projectID)
	filter["rejected"] = false
	matched, err := d.conn.UpdateOne(database.CollectionAccessRequests, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: access request %s/%s/%s", faults.ErrStaleReference,
			user.NormalizeAddress(endUser), user.NormalizeAddress(institution), projectID)
	}
	return nil
}

func (d *MongoRequestDirectory) Reject(_ context.Context, endUser, institution string) error {
	filter := bson.M{
		"endUserAddress":                    user.NormalizeAddress(endUser),
		"researchInstitutionManagerAddress": user.NormalizeAddress(institution),
	}
	matched, err := d.conn.UpdateMany(database.CollectionAccessRequests, filter, bson.M{
		"$set": bson.M{
			"granted":   false,
			"revoked":   false,
			"rejected":  true,
			"pendingBC": false,
		},
	})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: access request", faults.ErrStaleReference)
	}
	return nil
}

func (d *MongoRequestDirectory) SetHandoff(_ context.Context, endUser, institution, projectID, ciphertext string) error {
	filter := tripleFilter(endUser, institution, projectID)
	filter["rejected"] = false
	matched, err := d.conn.UpdateOne(database.CollectionAccessRequests, filter, bson.M{
		"$set": bson.M{
			"pendingBC":         true,
			"encryptedPassword": ciphertext,
		},
	})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: access request", faults.ErrStaleReference)
	}
	return nil
}

func (d *MongoRequestDirectory) Delete(_ context.Context, endUser, institution, projectID string) error {
	deleted, err := d.conn.DeleteOne(database.CollectionAccessRequests, tripleFilter(endUser, institution, projectID))
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: access request", faults.ErrNotFound)
	}
	return nil
}

func (d *MongoRequestDirectory) RevokeAll(_ context.Context, endUser string) error {
	filter := bson.M{
		"endUserAddress": user.NormalizeAddress(endUser),
		"rejected":       false,
	}
	_, err := d.conn.UpdateMany(database.CollectionAccessRequests, filter, bson.M{
		"$set": bson.M{
			"granted":           false,
			"revoked":           true,
			"pendingBC":         false,
			"encryptedPassword": "",
		},
	})
	return err
}

func (d *MongoRequestDirectory) ListForEndUser(_ context.Context, endUser string, page, limit int64, f Filter) (*RequestListing, error) {
	filter := bson.M{"endUserAddress": user.NormalizeAddress(endUser), "rejected": false}
	switch f {
	case FilterPending:
		filter["granted"] = false
		filter["revoked"] = false
	case FilterGranted:
		filter["granted"] = true
	case FilterRevoked:
		filter["revoked"] = true
	case FilterRejected:
		filter["rejected"] = true
	}
	return d.list(filter, page, limit, bson.D{
		{Key: "researchInstitutionManagerAddress", Value: 1},
		{Key: "project", Value: 1},
	})
}

func (d *MongoRequestDirectory) ListForInstitution(_ context.Context, institution string, page, limit int64, f Filter) (*RequestListing, error) {
	filter := bson.M{"researchInstitutionManagerAddress": user.NormalizeAddress(institution)}
	switch f {
	case FilterPending:
		filter["granted"] = false
		filter["revoked"] = false
		filter["rejected"] = false
	case FilterGranted:
		filter["granted"] = true
	case FilterRevoked:
		filter["revoked"] = true
	case FilterRejected:
		filter["rejected"] = true
	}
	return d.list(filter, page, limit, bson.D{
		{Key: "endUserAddress", Value: 1},
		{Key: "project", Value: 1},
	})
}

func (d *MongoRequestDirectory) list(filter bson.M, page, limit int64, sort bson.D) (*RequestListing, error) {
	total, err := d.conn.CountCollectionDocs(database.CollectionAccessRequests, filter)
	if err != nil {
		return nil, err
	}
	p := database.NewPage(page, limit, total)

	var requests []Request
	if err = d.conn.FindDocs(database.CollectionAccessRequests, filter, p.Limit, p.Skip(), sort, &requests); err != nil {
		return nil, err
	}
	return &RequestListing{Requests: requests, Page: p}, nil
}

func (d *MongoRequestDirectory) ProjectStats(_ context.Context, institution, projectID string) (*Stats, error) {
	base := func() bson.M {
		return bson.M{
			"researchInstitutionManagerAddress": user.NormalizeAddress(institution),
			"project":                           projectID,
		}
	}

	stats := &Stats{}
	var err error

	granted := base()
	granted["granted"] = true
	if stats.Granted, err = d.conn.CountCollectionDocs(database.CollectionAccessRequests, granted); err != nil {
		return nil, err
	}

	revoked := base()
	revoked["revoked"] = true
	if stats.Revoked, err = d.conn.CountCollectionDocs(database.CollectionAccessRequests, revoked); err != nil {
		return nil, err
	}

	rejected := base()
	rejected["rejected"] = true
	if stats.Rejected, err = d.conn.CountCollectionDocs(database.CollectionAccessRequests, rejected); err != nil {
		return nil, err
	}

	pending := base()
	pending["granted"] = false
	pending["revoked"] = false
	pending["rejected"] = false
	if stats.Pending, err = d.conn.CountCollectionDocs(database.CollectionAccessRequests, pending); err != nil {
		return nil, err
	}

	return stats, nil
}
