package user

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
)

// MongoDirectory is the mongo-backed Directory.
type MongoDirectory struct {
	conn *database.Connection
}

// NewMongoDirectory returns a Directory over the users collection.
func NewMongoDirectory(conn *database.Connection) *MongoDirectory {
	return &MongoDirectory{conn: conn}
}

func (d *MongoDirectory) Create(_ context.Context, u User) error {
	if !u.Role.Valid() {
		return faults.ErrInvalidRole
	}
	u.Address = NormalizeAddress(u.Address)
	if _, err := d.conn.InsertOne(database.CollectionUsers, u); err != nil {
		if database.IsDuplicate(err) {
			return fmt.Errorf("%w: user %s", faults.ErrDuplicate, u.Address)
		}
		return err
	}
	return nil
}

func (d *MongoDirectory) Get(_ context.Context, address string) (*User, error) {
	var u User
	err := d.conn.FindOne(database.CollectionUsers, bson.M{"address": NormalizeAddress(address)}, &u)
	if err != nil {
		if database.IsNoDocuments(err) {
			return nil, fmt.Errorf("%w: user %s", faults.ErrNotFound, NormalizeAddress(address))
		}
		return nil, err
	}
	return &u, nil
}

func (d *MongoDirectory) Update(ctx context.Context, address string, p ProfileUpdate) (*User, error) {
	set := bson.M{}
	assign := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	assign("firstName", p.FirstName)
	assign("surnames", p.Surnames)
	assign("phone", p.Phone)
	assign("email", p.Email)
	assign("institutionName", p.InstitutionName)
	assign("cardId", p.CardID)
	assign("dataUrl", p.DataURL)
	assign("firebaseCloudToken", p.FirebaseCloudToken)
	if p.Asleep != nil {
		set["asleep"] = *p.Asleep
	}

	if len(set) > 0 {
		matched, err := d.conn.UpdateOne(database.CollectionUsers,
			bson.M{"address": NormalizeAddress(address)}, bson.M{"$set": set})
		if err != nil {
			return nil, err
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: user %s", faults.ErrNotFound, NormalizeAddress(address))
		}
	}
	return d.Get(ctx, address)
}

func (d *MongoDirectory) Unregister(_ context.Context, address string) error {
	matched, err := d.conn.UpdateOne(database.CollectionUsers,
		bson.M{"address": NormalizeAddress(address)},
		bson.M{"$set": bson.M{"unregistered": true}})
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%w: user %s", faults.ErrNotFound, NormalizeAddress(address))
	}
	return nil
}

func (d *MongoDirectory) Delete(_ context.Context, address string) error {
	deleted, err := d.conn.DeleteOne(database.CollectionUsers,
		bson.M{"address": NormalizeAddress(address)})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: user %s", faults.ErrNotFound, NormalizeAddress(address))
	}
	return nil
}

func (d *MongoDirectory) List(_ context.Context, page, limit int64, role Role) (*Listing, error) {
	filter := bson.M{"role": role, "unregistered": false}
	total, err := d.conn.CountCollectionDocs(database.CollectionUsers, filter)
	if err != nil {
		return nil, err
	}
	p := database.NewPage(page, limit, total)

	var users []User
	sort := bson.D{{Key: "surnames", Value: 1}}
	if err = d.conn.FindDocs(database.CollectionUsers, filter, p.Limit, p.Skip(), sort, &users); err != nil {
		return nil, err
	}
	return &Listing{Users: users, Page: p}, nil
}

func (d *MongoDirectory) EndUsers(_ context.Context) ([]User, error) {
	var users []User
	filter := bson.M{"role": RoleEndUser, "unregistered": false}
	if err := d.conn.FindDocs(database.CollectionUsers, filter, 0, 0, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// EndUserAddresses lists registered end-user addresses; it feeds the
// Merkle index rebuild at boot.
func (d *MongoDirectory) EndUserAddresses(ctx context.Context) ([]string, error) {
	users, err := d.EndUsers(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(users))
	for _, u := range users {
		addresses = append(addresses, u.Address)
	}
	return addresses, nil
}

func (d *MongoDirectory) EndUserCount(_ context.Context) (int64, error) {
	return d.conn.CountCollectionDocs(database.CollectionUsers,
		bson.M{"role": RoleEndUser, "unregistered": false})
}
