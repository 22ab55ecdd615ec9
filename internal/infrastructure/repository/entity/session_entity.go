package entity

import (
	"time"

	"archie-core-session-layer/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoSessionDoc represents a session in MongoDB
type MongoSessionDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	SessionID      string             `bson:"session_id"`
	Shop           string             `bson:"shop"`
	Token          string             `bson:"token"`
	IPAddress      string             `bson:"ip_address"`
	UserAgent      string             `bson:"user_agent"`
	CreatedAt      time.Time          `bson:"created_at"`
	LastAccessedAt time.Time          `bson:"last_accessed_at"`
	ExpiresAt      *time.Time         `bson:"expires_at,omitempty"`
	Active         bool               `bson:"active"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSessionDoc) ToDomain() *domain.Session {
	return &domain.Session{
		ID:             d.SessionID,
		Shop:           d.Shop,
		Token:          d.Token,
		IPAddress:      d.IPAddress,
		UserAgent:      d.UserAgent,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
		ExpiresAt:      d.ExpiresAt,
		Active:         d.Active,
	}
}
