package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/models"
)

// Feed identifies one paginated timeline stream.
type Feed string

const (
	FeedTransactions Feed = "timelineTransactions"
	FeedActivityLog  Feed = "timelineActivityLog"
)

// Client is the subset of the API client the timeline stages need.
type Client interface {
	TimelineTransactions(ctx context.Context, after any) (json.RawMessage, error)
	TimelineActivityLog(ctx context.Context, after any) (json.RawMessage, error)
	TimelineDetail(ctx context.Context, eventID string) (json.RawMessage, error)
}

// Pager walks one feed page by page. Pagination within a feed is strictly
// sequential because the next request needs the cursor carried by the
// previous page's last item.
type Pager struct {
	client Client
	logger *zap.Logger
}

func NewPager(client Client, logger *zap.Logger) *Pager {
	return &Pager{client: client, logger: logger}
}

// FetchAll accumulates every page of feed in arrival order. since bounds how
// far back the feed reaches (epoch seconds, 0 means everything); it rides the
// first request only, subsequent requests carry the cursor. The feed ends on
// an empty page or a last item without a cursor.
func (p *Pager) FetchAll(ctx context.Context, feed Feed, since int64) ([]models.TransactionEvent, error) {
	var (
		events []models.TransactionEvent
		after  any
		pages  int
	)
	if since > 0 {
		after = since
	}

	for {
		payload, err := p.fetchPage(ctx, feed, after)
		if err != nil {
			return nil, fmt.Errorf("feed %s page %d: %w", feed, pages+1, err)
		}

		page, err := models.ParsePage(payload)
		if err != nil {
			return nil, fmt.Errorf("feed %s page %d: %w", feed, pages+1, err)
		}
		pages++
		events = append(events, page.Items...)

		p.logger.Debug("page received",
			zap.String("feed", string(feed)),
			zap.Int("page", pages),
			zap.Int("items", len(page.Items)),
			zap.Bool("more", page.Cursor != ""),
		)

		if len(page.Items) == 0 || page.Cursor == "" {
			break
		}
		after = page.Cursor
	}

	p.logger.Info("feed exhausted",
		zap.String("feed", string(feed)),
		zap.Int("pages", pages),
		zap.Int("events", len(events)),
	)
	return events, nil
}

func (p *Pager) fetchPage(ctx context.Context, feed Feed, after any) (json.RawMessage, error) {
	switch feed {
	case FeedTransactions:
		return p.client.TimelineTransactions(ctx, after)
	case FeedActivityLog:
		return p.client.TimelineActivityLog(ctx, after)
	default:
		return nil, fmt.Errorf("unknown feed %q", feed)
	}
}
