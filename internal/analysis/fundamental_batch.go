package analysis

import "sync"

// FundamentalBatchResult pairs one symbol's provider fetch with its
// scored result, or the fetch error if the provider failed.
type FundamentalBatchResult struct {
	Symbol string
	Result FundamentalResult
	Err    error
}

// ScoreFundamentalBatch scores every symbol concurrently, bounded by a
// counting semaphore of the given size (§5 "fundamental-provider
// semaphore"). A provider failure for one symbol does not affect any
// other symbol in the batch.
func ScoreFundamentalBatch(symbols []string, provider FundamentalProvider, cfg FundamentalConfig, semaphoreSize int) []FundamentalBatchResult {
	if semaphoreSize <= 0 {
		semaphoreSize = 1
	}
	sem := make(chan struct{}, semaphoreSize)
	results := make([]FundamentalBatchResult, len(symbols))

	var wg sync.WaitGroup
	for idx, symbol := range symbols {
		idx, symbol := idx, symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			in, err := provider.Fundamentals(symbol)
			if err != nil {
				results[idx] = FundamentalBatchResult{Symbol: symbol, Err: err}
				return
			}
			results[idx] = FundamentalBatchResult{Symbol: symbol, Result: ScoreFundamental(in, cfg)}
		}()
	}
	wg.Wait()

	return results
}
