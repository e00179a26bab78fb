package persist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionDoc is the persisted shape of a dry-run session (spec.md §6
// "Persisted state. Optional per-session JSON {sessionId, savedAt,
// payload}").
type SessionDoc struct {
	SessionID string    `bson:"session_id"`
	SavedAt   time.Time `bson:"saved_at"`
	Payload   bson.Raw  `bson:"payload"`
}

// SessionStore persists per-session snapshots for later resume or
// inspection. Grounded on the teacher's Snapshotter.Save/Load
// upsert-then-restore shape, generalized from a single global
// simulator-state document to one document per dry-run session.
type SessionStore struct {
	store *Store
}

// NewSessionStore wraps store for session snapshot persistence.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Save upserts the session's current payload (spec.md §4.9 status
// shape, or any other session-scoped snapshot).
func (s *SessionStore) Save(ctx context.Context, sessionID string, payload any) error {
	start := time.Now()

	raw, err := bson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal session payload: %w", err)
	}

	filter := bson.M{"session_id": sessionID}
	update := bson.M{"$set": bson.M{
		"session_id": sessionID,
		"saved_at":   time.Now(),
		"payload":    bson.Raw(raw),
	}}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := s.store.db.Collection("sessions").UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}

	log.Printf("session %s saved in %v", sessionID, time.Since(start))
	return nil
}

// Load decodes the session's last saved payload into dest. Returns
// false if no snapshot for sessionID exists.
func (s *SessionStore) Load(ctx context.Context, sessionID string, dest any) (bool, error) {
	var doc SessionDoc
	err := s.store.db.Collection("sessions").FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if err := bson.Unmarshal(doc.Payload, dest); err != nil {
		return false, fmt.Errorf("decode session %s payload: %w", sessionID, err)
	}
	return true, nil
}

// DeleteSession removes a session's persisted snapshot (spec.md §4.9
// "reset").
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.store.db.Collection("sessions").DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// SaveRawEvent archives one upstream event (trade/orderbook/funding)
// for retention-bounded replay and audit, independent of the
// append-only JSONL files internal/archive writes for durable offload.
func (s *SessionStore) SaveRawEvent(ctx context.Context, symbol, kind string, payload any) error {
	raw, err := bson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal raw event payload: %w", err)
	}
	_, err = s.store.db.Collection("raw_events").InsertOne(ctx, bson.M{
		"symbol":      symbol,
		"kind":        kind,
		"recorded_at": time.Now(),
		"payload":     bson.Raw(raw),
	})
	return err
}
