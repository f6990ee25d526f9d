// Package aggregate fetches per-parent child counts concurrently and
// tolerates partial failure.
//
// Example usage:
//
//	fetcher := aggregate.NewFetcher(countReplies, aggregate.DefaultConfig())
//	counts := fetcher.CountsFor(ctx, []int64{1, 2, 3})
//
// The fetcher:
//   - Issues one sub-fetch per distinct parent, all at once unless
//     MaxConcurrency is set
//   - Maps every requested parent in the result
//   - Records a failed sub-fetch as zero without affecting the others
//   - Returns only after every sub-fetch has settled
package aggregate
