package registration

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/user"
)

// MongoDirectory is the mongo-backed Directory.
type MongoDirectory struct {
	conn *database.Connection
}

func NewMongoDirectory(conn *database.Connection) *MongoDirectory {
	return &MongoDirectory{conn: conn}
}

func (d *MongoDirectory) Create(_ context.Context, r RegisterRequest) error {
	r.Address = user.NormalizeAddress(r.Address)
	if _, err := d.conn.InsertOne(database.CollectionRegisterRequests, r); err != nil {
		if database.IsDuplicate(err) {
			return faults.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (d *MongoDirectory) Get(_ context.Context, address string) (*RegisterRequest, error) {
	var r RegisterRequest
	err := d.conn.FindOne(database.CollectionRegisterRequests,
		bson.M{"address": user.NormalizeAddress(address)}, &r)
	if err != nil {
		if database.IsNoDocuments(err) {
			return nil, fmt.Errorf("%w: register request %s", faults.ErrNotFound, user.NormalizeAddress(address))
		}
		return nil, err
	}
	return &r, nil
}

func (d *MongoDirectory) Delete(_ context.Context, address string) error {
	deleted, err := d.conn.DeleteOne(database.CollectionRegisterRequests,
		bson.M{"address": user.NormalizeAddress(address)})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: register request %s", faults.ErrNotFound, user.NormalizeAddress(address))
	}
	return nil
}

func (d *MongoDirectory) MarkPendingBC(_ context.Context, address string) error {
	matched, err := d.conn.UpdateOne(database.CollectionRegisterRequests,
		bson.M{"address": user.NormalizeAddress(address)},
		bson.M{"$set": bson.M{"pendingBC": true}})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: register request %s", faults.ErrNotFound, user.NormalizeAddress(address))
	}
	return nil
}

func (d *MongoDirectory) List(_ context.Context, page, limit int64, role user.Role) (*Listing, error) {
	filter := bson.M{"role": role, "pendingBC": false}
	total, err := d.conn.CountCollectionDocs(database.CollectionRegisterRequests, filter)
	if err != nil {
		return nil, err
	}
	p := database.NewPage(page, limit, total)

	var requests []RegisterRequest
	sort := bson.D{{Key: "surnames", Value: 1}}
	if err = d.conn.FindDocs(database.CollectionRegisterRequests, filter, p.Limit, p.Skip(), sort, &requests); err != nil {
		return nil, err
	}
	return &Listing{Requests: requests, Page: p}, nil
}
