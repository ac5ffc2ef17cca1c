package newsclass

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	BatchSize int
	// Shuffle reorders the loader's indices at the start of every epoch.
	Shuffle bool
	Seed    *int64
	// Prefetch is the number of batches collated ahead of the consumer.
	// Zero collates synchronously.
	Prefetch int
}

// LoadedBatch is one element of a Loader's output channel. Err is set for a
// batch that failed to collate; Indices are the dataset rows it came from.
type LoadedBatch struct {
	Batch   Batch
	Indices []int
	Err     error
}

// Loader yields collated batches over a subset of a dataset, reshuffling the
// subset each epoch like a random subset sampler.
type Loader struct {
	ds       *Dataset
	indices  []int
	collator *Collator
	opts     LoaderOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLoader validates its inputs and copies indices.
func NewLoader(ds *Dataset, indices []int, collator *Collator, opts LoaderOptions) (*Loader, error) {
	if ds == nil || collator == nil {
		return nil, errors.New("newsclass: loader needs a dataset and a collator")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.New("newsclass: batch size must be positive")
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, errors.New("newsclass: loader index out of range")
		}
	}
	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	return &Loader{
		ds:       ds,
		indices:  append([]int(nil), indices...),
		collator: collator,
		opts:     opts,
		rng:      rand.New(rand.NewSource(uint64(seed))),
	}, nil
}

// Len is the number of dataset rows the loader covers.
func (l *Loader) Len() int { return len(l.indices) }

// NumBatches is the number of batches per epoch; the last one may be short.
func (l *Loader) NumBatches() int {
	return (len(l.indices) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.opts.BatchSize }

// epochOrder returns the index order for a new epoch.
func (l *Loader) epochOrder() []int {
	order := append([]int(nil), l.indices...)
	if l.opts.Shuffle {
		l.mu.Lock()
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		l.mu.Unlock()
	}
	return order
}

// Batches starts one epoch. The channel delivers batches in order and is
// closed after the last batch or when ctx is cancelled. With Prefetch > 0,
// that many worker goroutines collate ahead of the consumer.
func (l *Loader) Batches(ctx context.Context) <-chan LoadedBatch {
	order := l.epochOrder()
	chunks := make([][]int, 0, l.NumBatches())
	for start := 0; start < len(order); start += l.opts.BatchSize {
		end := start + l.opts.BatchSize
		if end > len(order) {
			end = len(order)
		}
		chunks = append(chunks, order[start:end])
	}

	out := make(chan LoadedBatch, l.opts.Prefetch)
	if l.opts.Prefetch == 0 {
		go func() {
			defer close(out)
			for _, chunk := range chunks {
				select {
				case out <- l.collate(chunk):
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	}

	// Each chunk gets its own result slot so workers can finish out of order
	// while the forwarder below keeps the epoch order.
	slots := make([]chan LoadedBatch, len(chunks))
	for i := range slots {
		slots[i] = make(chan LoadedBatch, 1)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < l.opts.Prefetch; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i] <- l.collate(chunks[i])
			}
		}()
	}
	// window bounds how far workers run ahead of the consumer.
	window := make(chan struct{}, l.opts.Prefetch)
	go func() {
		defer close(jobs)
		for i := range chunks {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer func() {
			close(out)
			wg.Wait()
		}()
		for i := range chunks {
			var lb LoadedBatch
			select {
			case lb = <-slots[i]:
			case <-ctx.Done():
				return
			}
			select {
			case out <- lb:
				<-window
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (l *Loader) collate(chunk []int) LoadedBatch {
	examples := make([]Example, len(chunk))
	for i, idx := range chunk {
		examples[i] = l.ds.Example(idx)
	}
	b, err := l.collator.Collate(examples)
	return LoadedBatch{Batch: b, Indices: chunk, Err: err}
}
