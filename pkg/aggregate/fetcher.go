package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/bbs-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	bbsAggregateSubfetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bbs_aggregate_subfetch_failures_total",
		Help: "Sub-fetches that failed and were counted as zero",
	})

	bbsAggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bbs_aggregate_duration_seconds",
		Help:    "Duration of a CountsFor fan-out",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
	})
)

// Config holds fetcher configuration.
type Config struct {
	// MaxConcurrency bounds parallel sub-fetches. Zero means one goroutine
	// per parent.
	MaxConcurrency int

	// Timeout bounds each sub-fetch. Zero means none beyond the caller's ctx.
	Timeout time.Duration
}

// DefaultConfig returns an unbounded configuration.
func DefaultConfig() Config {
	return Config{}
}

// CountFunc returns the number of children of one parent.
type CountFunc func(ctx context.Context, parentID int64) (int, error)

// Fetcher fans out one sub-fetch per parent.
type Fetcher struct {
	count  CountFunc
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher around count.
func NewFetcher(count CountFunc, config Config) *Fetcher {
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	return &Fetcher{
		count:  count,
		config: config,
		logger: logging.NewLogger("bbs-aggregate"),
	}
}

// CountsFor returns a count for every distinct id in parentIDs. It never
// fails as a whole: a failed sub-fetch is logged and counted as zero, and
// it does not cancel its siblings. An empty input makes no calls.
func (f *Fetcher) CountsFor(ctx context.Context, parentIDs []int64) map[int64]int {
	counts := make(map[int64]int, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts
	}

	start := time.Now()
	defer func() {
		bbsAggregateDuration.Observe(time.Since(start).Seconds())
	}()

	ids := distinct(parentIDs)
	var mu sync.Mutex
	var failed int

	// A plain Group, not WithContext: one failure must not cancel the rest.
	var g errgroup.Group
	if f.config.MaxConcurrency > 0 {
		g.SetLimit(f.config.MaxConcurrency)
	}

	for _, id := range ids {
		g.Go(func() error {
			n, err := f.fetchOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				bbsAggregateSubfetchFailuresTotal.Inc()
				f.logger.Warn().
					Err(err).
					Int64("parent_id", id).
					Msg("Count fetch failed, using zero")
				n = 0
			}
			counts[id] = n
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Debug().
		Int("parents", len(ids)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Counts fetched")
	return counts
}

func (f *Fetcher) fetchOne(ctx context.Context, id int64) (int, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}
	return f.count(ctx, id)
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
