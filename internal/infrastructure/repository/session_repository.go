package repository

import (
	"context"
	"fmt"
	"time"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/infrastructure/repository/entity"
	"archie-core-session-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSessionRepository implements SessionRepository using MongoDB
type MongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new MongoDB session repository
func NewMongoSessionRepository(db *mongo.Database) ports.SessionRepository {
	return &MongoSessionRepository{
		collection: db.Collection("sessions"),
	}
}

// EnsureIndexes creates the unique session_id index and the (shop, active)
// compound index used by the limit-count and most-recent-active queries.
func (r *MongoSessionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "shop", Value: 1}, {Key: "active", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "shop", Value: 1}, {Key: "last_accessed_at", Value: -1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// Upsert atomically inserts or updates the session keyed on
// (shop, session_id). The store's uniqueness constraint linearizes
// concurrent writes for the same key; the last writer wins.
func (r *MongoSessionRepository) Upsert(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	now := time.Now()

	filter := bson.M{"shop": session.Shop, "session_id": session.ID}
	update := bson.M{
		// A completed OAuth exchange always yields a live session, so an
		// upsert of a previously terminated identifier reactivates it. The
		// cache write-through and the store row must never disagree about
		// whether the session exists.
		"$set": bson.M{
			"token":      session.Token,
			"ip_address": session.IPAddress,
			"user_agent": session.UserAgent,
			"active":     true,
		},
		// last_accessed_at never moves backwards, even under clock skew
		// between instances.
		"$max":         bson.M{"last_accessed_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc entity.MongoSessionDoc
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, storeErr("failed to upsert session", err)
	}

	return doc.ToDomain(), nil
}

// GetBySession retrieves one session by (shop, sessionID)
func (r *MongoSessionRepository) GetBySession(ctx context.Context, shop, sessionID string) (*domain.Session, error) {
	var doc entity.MongoSessionDoc
	filter := bson.M{"shop": shop, "session_id": sessionID}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get session", err)
	}

	return doc.ToDomain(), nil
}

// MostRecentActive retrieves the active session of shop with the newest
// last_accessed_at.
func (r *MongoSessionRepository) MostRecentActive(ctx context.Context, shop string) (*domain.Session, error) {
	var doc entity.MongoSessionDoc
	filter := bson.M{"shop": shop, "active": true}
	opts := options.FindOne().SetSort(bson.D{{Key: "last_accessed_at", Value: -1}})

	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to get most recent active session", err)
	}

	return doc.ToDomain(), nil
}

// ListActive lists all active sessions for shop, newest first
func (r *MongoSessionRepository) ListActive(ctx context.Context, shop string) ([]*domain.Session, error) {
	filter := bson.M{"shop": shop, "active": true}
	opts := options.Find().SetSort(bson.D{{Key: "last_accessed_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("failed to list active sessions", err)
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	for cursor.Next(ctx) {
		var doc entity.MongoSessionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeErr("failed to decode session", err)
		}
		sessions = append(sessions, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("cursor error", err)
	}

	return sessions, nil
}

// CountActive counts active sessions for shop
func (r *MongoSessionRepository) CountActive(ctx context.Context, shop string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"shop": shop, "active": true})
	if err != nil {
		return 0, storeErr("failed to count active sessions", err)
	}
	return int(count), nil
}

// SetActive flips the active flag of one session
func (r *MongoSessionRepository) SetActive(ctx context.Context, shop, sessionID string, active bool) error {
	filter := bson.M{"shop": shop, "session_id": sessionID}
	update := bson.M{"$set": bson.M{"active": active}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("failed to update session active flag", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// Touch bumps last_accessed_at to now, never moving it backwards
func (r *MongoSessionRepository) Touch(ctx context.Context, shop, sessionID string) error {
	filter := bson.M{"shop": shop, "session_id": sessionID}
	update := bson.M{"$max": bson.M{"last_accessed_at": time.Now()}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return storeErr("failed to touch session", err)
	}
	return nil
}

// MarkInactiveBefore deactivates sessions idle since before cutoff
func (r *MongoSessionRepository) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{"active": true, "last_accessed_at": bson.M{"$lt": cutoff}}
	update := bson.M{"$set": bson.M{"active": false}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, storeErr("failed to mark sessions inactive", err)
	}
	return result.ModifiedCount, nil
}

// DeleteCreatedBefore hard-deletes sessions created before cutoff and
// returns the deleted sessions so callers can evict cache entries. The
// select-then-delete is intentionally not transactional: a session created
// between the two steps is younger than the cutoff and untouched, and a
// concurrent delete just makes the second step a no-op.
func (r *MongoSessionRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	filter := bson.M{"created_at": bson.M{"$lt": cutoff}}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, storeErr("failed to select expired sessions", err)
	}
	defer cursor.Close(ctx)

	var expired []*domain.Session
	ids := make([]string, 0)
	for cursor.Next(ctx) {
		var doc entity.MongoSessionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeErr("failed to decode session", err)
		}
		expired = append(expired, doc.ToDomain())
		ids = append(ids, doc.SessionID)
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("cursor error", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := r.collection.DeleteMany(ctx, bson.M{"session_id": bson.M{"$in": ids}}); err != nil {
		return nil, storeErr("failed to delete expired sessions", err)
	}

	return expired, nil
}

// DeleteByShop removes all sessions of a shop
func (r *MongoSessionRepository) DeleteByShop(ctx context.Context, shop string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"shop": shop}); err != nil {
		return storeErr("failed to delete sessions for shop", err)
	}
	return nil
}

// storeErr wraps a Mongo failure so callers can match
// domain.ErrStoreUnavailable with errors.Is while keeping the cause.
func storeErr(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrStoreUnavailable, err)
}
