package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDirectory reads and updates donors in a MongoDB collection.
type MongoDirectory struct {
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time
}

func NewMongoDirectory(collection *mongo.Collection, timeout time.Duration) *MongoDirectory {
	return &MongoDirectory{
		collection: collection,
		timeout:    timeout,
		now:        time.Now,
	}
}

type donorDocument struct {
	ID    bson.RawValue `bson:"_id"`
	Donor `bson:",inline"`
}

func (d *MongoDirectory) FindByField(ctx context.Context, field, value string) (*Donor, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var doc donorDocument
	err := d.collection.FindOne(ctx, bson.M{field: value}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDonorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find donor: %w", err)
	}

	donor := doc.Donor
	donor.ID = documentID(doc.ID)
	return &donor, nil
}

func (d *MongoDirectory) SetAvailability(ctx context.Context, donorID string, available bool) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res, err := d.collection.UpdateOne(
		ctx,
		bson.M{"_id": idFilterValue(donorID)},
		bson.M{
			"$set": bson.M{
				"isAvailable": available,
				"updatedAt":   d.now().UTC(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update donor availability: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update donor availability: %w", ErrDonorNotFound)
	}
	return nil
}

func (d *MongoDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// documentID renders an _id as the string the rest of the gateway uses.
func documentID(raw bson.RawValue) string {
	switch raw.Type {
	case bsontype.ObjectID:
		return raw.ObjectID().Hex()
	case bsontype.String:
		return raw.StringValue()
	default:
		return raw.String()
	}
}

func idFilterValue(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}
