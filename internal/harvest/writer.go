package harvest

import (
	"context"
	"time"

	"igharvest/internal/models"
	"igharvest/internal/store"
	"igharvest/pkg/apify"
	errs "igharvest/pkg/errors"
)

// Transform maps provider posts to stored items. The raw post is kept as
// metadata. Posts without a parseable timestamp get a nil PostedAt.
func Transform(accountID string, posts []apify.Post, scrapedAt time.Time) []models.ScrapedItem {
	items := make([]models.ScrapedItem, 0, len(posts))
	for _, p := range posts {
		item := models.ScrapedItem{
			InstagramAccountID: accountID,
			PostID:             p.ID(),
			Caption:            p.Caption(),
			ImageURL:           p.DisplayURL(),
			LikesCount:         p.LikesCount(),
			CommentsCount:      p.CommentsCount(),
			ScrapedAt:          scrapedAt.UTC(),
			Metadata:           models.JSONMap(p),
		}
		if ts, ok := p.Timestamp(); ok {
			item.PostedAt = &ts
		}
		items = append(items, item)
	}
	return items
}

// Writer persists a run's posts and closes its log record
type Writer struct {
	store store.HarvestStore
	now   func() time.Time
}

// NewWriter creates a writer on st
func NewWriter(st store.HarvestStore) *Writer {
	return &Writer{store: st, now: time.Now}
}

// Write upserts posts for accountID in one batch and returns how many were
// written. No posts is an EmptyResult error.
func (w *Writer) Write(ctx context.Context, accountID string, posts []apify.Post) (int, error) {
	if len(posts) == 0 {
		return 0, errs.EmptyResult()
	}

	items := Transform(accountID, posts, w.now())
	if _, err := w.store.UpsertItems(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Finish applies the single terminal update to logID. runErr nil means
// success with items written.
func (w *Writer) Finish(ctx context.Context, logID string, items int, runErr error) error {
	update := store.LogUpdate{
		Status:       models.StatusSuccess,
		FinishedAt:   w.now().UTC(),
		ItemsScraped: items,
	}
	if runErr != nil {
		msg := runErr.Error()
		update.Status = models.StatusFailed
		update.ItemsScraped = 0
		update.ErrorMessage = &msg
	}
	return w.store.FinishLog(ctx, logID, update)
}
