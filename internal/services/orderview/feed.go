package orderview

import (
	"context"
	"reflect"
	"sync"

	"cart-order-system/internal/live"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
)

// Source builds list and detail views on demand.
type Source interface {
	List(ctx context.Context, q Query) ([]models.OrderView, error)
	Detail(ctx context.Context, orderID int) (models.OrderView, error)
}

// Feed re-derives views whenever data changes or the query changes. Each new
// input cancels the build in flight; only the newest build is delivered.
type Feed struct {
	source Source
	logger *logger.Logger

	mu      sync.Mutex
	version *live.Value[uint64]
}

func NewFeed(source Source, log *logger.Logger) *Feed {
	return &Feed{
		source:  source,
		logger:  log,
		version: live.NewValue[uint64](0),
	}
}

// Notify marks the data behind every view as changed.
func (f *Feed) Notify(orderID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version.Set(f.version.Get() + 1)
}

// WatchList streams the order list for the latest query received on queries,
// starting with initial. Unchanged lists are not re-emitted.
func (f *Feed) WatchList(ctx context.Context, initial Query, queries <-chan Query) <-chan []models.OrderView {
	return follow(ctx, f, initial, queries, f.source.List)
}

// WatchDetail streams the view of one order.
func (f *Feed) WatchDetail(ctx context.Context, orderID int) <-chan models.OrderView {
	return follow(ctx, f, orderID, nil, f.source.Detail)
}

type result[R any] struct {
	generation uint64
	value      R
	err        error
}

func follow[Q, R any](ctx context.Context, f *Feed, query Q, queries <-chan Q, build func(context.Context, Q) (R, error)) <-chan R {
	out := make(chan R, 1)
	changes := f.version.Subscribe(ctx)
	results := make(chan result[R])

	go func() {
		defer close(out)

		var (
			generation uint64
			cancel     = func() {}
			last       R
			emitted    bool
		)
		defer func() { cancel() }()

		start := func() {
			cancel()
			generation++
			bctx, c := context.WithCancel(ctx)
			cancel = c
			gen, q := generation, query
			go func() {
				v, err := build(bctx, q)
				select {
				case results <- result[R]{generation: gen, value: v, err: err}:
				case <-ctx.Done():
				}
			}()
		}

		// the subscription always starts with the current version
		if _, ok := <-changes; !ok {
			return
		}
		start()

		for {
			select {
			case <-ctx.Done():
				return
			case q, ok := <-queries:
				if !ok {
					queries = nil
					continue
				}
				query = q
				start()
			case _, ok := <-changes:
				if !ok {
					return
				}
				start()
			case r := <-results:
				if r.generation != generation {
					continue
				}
				if r.err != nil {
					if ctx.Err() == nil {
						f.logger.Error("view_build_failed", "Failed to build order view", logger.RequestID(ctx), r.err, nil)
					}
					continue
				}
				if emitted && reflect.DeepEqual(last, r.value) {
					continue
				}
				last, emitted = r.value, true
				select {
				case <-out:
				default:
				}
				out <- r.value
			}
		}
	}()

	return out
}
