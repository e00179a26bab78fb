package persist

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunRetention periodically deletes archived raw_events older than the
// retention period. Blocks until ctx is cancelled. Pass retentionDays
// <= 0 to disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("raw event retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("raw event retention: pruning events older than %d days every %v", retentionDays, interval)

	prune(ctx, store, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays)
		}
	}
}

func prune(ctx context.Context, store *Store, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := store.db.Collection("raw_events").DeleteMany(ctx, bson.M{
		"recorded_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("raw event retention prune error: %v", err)
		return
	}

	if result.DeletedCount > 0 {
		log.Printf("raw event retention: pruned %d events older than %s", result.DeletedCount, cutoff.Format(time.DateOnly))
	}
}
