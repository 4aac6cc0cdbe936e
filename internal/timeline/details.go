package timeline

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// DetailResult is the outcome of one detail exchange: payload or failure,
// exactly one per requested event.
type DetailResult struct {
	EventID string
	Payload json.RawMessage
	Err     error
}

// DetailFetcher fans detail requests out over a bounded worker pool so at
// most workers exchanges are in flight at once.
type DetailFetcher struct {
	client  Client
	workers int
	logger  *zap.Logger
}

func NewDetailFetcher(client Client, workers int, logger *zap.Logger) *DetailFetcher {
	if workers < 1 {
		workers = 1
	}
	return &DetailFetcher{
		client:  client,
		workers: workers,
		logger:  logger,
	}
}

// FetchAll resolves one DetailResult per event id. A failed fetch is recorded
// against its own event only; the rest of the batch keeps going. When ctx is
// cancelled the remaining ids drain quickly as failures instead of being
// dropped.
func (f *DetailFetcher) FetchAll(ctx context.Context, eventIDs []string) map[string]DetailResult {
	results := make(map[string]DetailResult, len(eventIDs))
	if len(eventIDs) == 0 {
		return results
	}

	jobs := make(chan string, len(eventIDs))
	out := make(chan DetailResult, len(eventIDs))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(ctx, jobs, out)
		}()
	}

	for _, id := range eventIDs {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	failed := 0
	for res := range out {
		if res.Err != nil {
			failed++
		}
		results[res.EventID] = res
	}

	f.logger.Info("details fetched",
		zap.Int("requested", len(eventIDs)),
		zap.Int("failed", failed),
		zap.Int("workers", f.workers),
	)
	return results
}

func (f *DetailFetcher) worker(ctx context.Context, jobs <-chan string, out chan<- DetailResult) {
	for id := range jobs {
		payload, err := f.client.TimelineDetail(ctx, id)
		if err != nil {
			f.logger.Warn("detail fetch failed", zap.String("event", id), zap.Error(err))
			out <- DetailResult{EventID: id, Err: err}
			continue
		}
		out <- DetailResult{EventID: id, Payload: payload}
	}
}
