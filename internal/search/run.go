package search

import (
	"context"
	"errors"
	"sync"

	"github.com/justestif/go-castor/internal/debounce"
)

// Run searches every query received from queries until ctx is done or
// queries is closed. A new query cancels the in-flight search for the
// previous one, and each outcome passes through results before onApply sees it.
func (p *Pipeline) Run(ctx context.Context, queries <-chan debounce.Query, results *Results, onApply func(Outcome)) {
	var wg sync.WaitGroup
	defer wg.Wait()

	cancelPrev := func() {}
	defer func() { cancelPrev() }()

	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-queries:
			if !ok {
				return
			}

			cancelPrev()
			results.Announce(q.Sequence)

			searchCtx, cancel := context.WithCancel(ctx)
			cancelPrev = cancel

			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := p.Search(searchCtx, q)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						p.logger.Warn().Err(err).Uint64("sequence", q.Sequence).Msg("search aborted")
					}
					return
				}
				if results.Apply(out) && onApply != nil {
					onApply(out)
				}
			}()
		}
	}
}
