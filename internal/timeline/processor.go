package timeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/models"
)

// Stats summarizes one timeline assembly run.
type Stats struct {
	TransactionEvents int
	ActivityEvents    int
	Duplicates        int
	DetailFailures    int
}

func (s *Stats) String() string {
	return fmt.Sprintf("transactions=%d activity=%d duplicates=%d detail_failures=%d",
		s.TransactionEvents, s.ActivityEvents, s.Duplicates, s.DetailFailures)
}

// Processor assembles the complete timeline: both list feeds paged out in
// parallel, merged and deduplicated, then joined with per-event details.
type Processor struct {
	pager   *Pager
	details *DetailFetcher
	logger  *zap.Logger
}

func NewProcessor(client Client, detailWorkers int, logger *zap.Logger) *Processor {
	return &Processor{
		pager:   NewPager(client, logger),
		details: NewDetailFetcher(client, detailWorkers, logger),
		logger:  logger,
	}
}

// Process fetches both feeds since the given boundary and returns the merged,
// detail-joined event set. The transaction feed leads the merge; an id seen
// there wins over its activity log duplicate. A failed feed fails the run, a
// failed detail only marks its event incomplete.
func (p *Processor) Process(ctx context.Context, since int64) ([]models.TransactionEvent, *Stats, error) {
	type feedResult struct {
		feed   Feed
		events []models.TransactionEvent
		err    error
	}

	feeds := []Feed{FeedTransactions, FeedActivityLog}
	ch := make(chan feedResult, len(feeds))
	for _, feed := range feeds {
		go func(feed Feed) {
			events, err := p.pager.FetchAll(ctx, feed, since)
			ch <- feedResult{feed: feed, events: events, err: err}
		}(feed)
	}

	byFeed := make(map[Feed][]models.TransactionEvent, len(feeds))
	var firstErr error
	for range feeds {
		res := <-ch
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		byFeed[res.feed] = res.events
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	stats := &Stats{
		TransactionEvents: len(byFeed[FeedTransactions]),
		ActivityEvents:    len(byFeed[FeedActivityLog]),
	}

	merged := make([]models.TransactionEvent, 0, stats.TransactionEvents+stats.ActivityEvents)
	seen := make(map[string]struct{}, cap(merged))
	for _, feed := range feeds {
		for _, ev := range byFeed[feed] {
			if _, dup := seen[ev.ID]; dup {
				stats.Duplicates++
				continue
			}
			seen[ev.ID] = struct{}{}
			merged = append(merged, ev)
		}
	}

	ids := make([]string, len(merged))
	for i, ev := range merged {
		ids[i] = ev.ID
	}
	details := p.details.FetchAll(ctx, ids)

	for i := range merged {
		res, ok := details[merged[i].ID]
		if !ok || res.Err != nil {
			merged[i].DetailIncomplete = true
			stats.DetailFailures++
			continue
		}
		merged[i].Detail = res.Payload
	}

	p.logger.Info("timeline assembled",
		zap.Int("events", len(merged)),
		zap.String("stats", stats.String()),
	)
	return merged, stats, nil
}
