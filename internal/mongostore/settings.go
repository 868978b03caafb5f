package mongostore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const settingsCollection = "settings"

// JWTSecret returns the persisted token signing secret, generating and
// storing a random one on first use.
func (s *Store) JWTSecret(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("reading jwt secret: store not connected")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	coll := s.db.Collection(settingsCollection)
	filter := bson.M{"_id": "jwt_secret"}

	// Concurrent first starts can both try the upsert; the loser sees a
	// duplicate key error and just reads the winner's value.
	_, err := coll.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": bson.M{"value": candidate}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	var doc struct {
		Value string `bson:"value"`
	}
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return "", fmt.Errorf("querying jwt secret: %w", err)
	}
	return doc.Value, nil
}
