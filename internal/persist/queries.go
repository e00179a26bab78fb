package persist

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RawEvent is a persisted archived event document.
type RawEvent struct {
	Symbol     string    `json:"symbol"     bson:"symbol"`
	Kind       string    `json:"kind"       bson:"kind"`
	RecordedAt time.Time `json:"recordedAt" bson:"recorded_at"`
	Payload    bson.Raw  `json:"-"          bson:"payload"`
}

// RawEventFilter controls which archived events to return.
type RawEventFilter struct {
	Symbol string
	Kind   string // "" matches any kind
	Limit  int
	Offset int
	From   *time.Time
	To     *time.Time
}

// RawEventStats holds aggregate archived-event counts for one symbol.
type RawEventStats struct {
	Symbol      string `json:"symbol"`
	TotalEvents int64  `json:"totalEvents"`
}

// RawEventReader abstracts read-only archived-event queries.
type RawEventReader interface {
	QueryRawEvents(ctx context.Context, f RawEventFilter) ([]RawEvent, error)
	QueryRawEventStats(ctx context.Context, symbol string) (RawEventStats, error)
}

// MongoRawEventReader implements RawEventReader using a mongo.Database.
type MongoRawEventReader struct {
	db *mongo.Database
}

// NewMongoRawEventReader creates a new MongoRawEventReader.
func NewMongoRawEventReader(db *mongo.Database) *MongoRawEventReader {
	return &MongoRawEventReader{db: db}
}

// QueryRawEvents returns archived events for a symbol with optional
// kind/time filtering and pagination.
func (r *MongoRawEventReader) QueryRawEvents(ctx context.Context, f RawEventFilter) ([]RawEvent, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	filter := bson.M{"symbol": f.Symbol}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	if f.From != nil || f.To != nil {
		timeFilter := bson.M{}
		if f.From != nil {
			timeFilter["$gte"] = *f.From
		}
		if f.To != nil {
			timeFilter["$lte"] = *f.To
		}
		filter["recorded_at"] = timeFilter
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(f.Limit)).
		SetSkip(int64(f.Offset))

	cursor, err := r.db.Collection("raw_events").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query raw events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []RawEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode raw events: %w", err)
	}
	return events, nil
}

// QueryRawEventStats returns the archived event count for one symbol.
func (r *MongoRawEventReader) QueryRawEventStats(ctx context.Context, symbol string) (RawEventStats, error) {
	count, err := r.db.Collection("raw_events").CountDocuments(ctx, bson.M{"symbol": symbol})
	if err != nil {
		return RawEventStats{}, fmt.Errorf("count raw events: %w", err)
	}
	return RawEventStats{Symbol: symbol, TotalEvents: count}, nil
}
