package download

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/distantorigin/noobcraft-installer/internal/manifest"
)

// ProgressFunc receives (completed, total, name) after each payload
// finishes. completed increases by one on every call.
type ProgressFunc func(completed, total int, name string)

// Batch is the outcome of FetchAll.
type Batch struct {
	Results   []Result
	Succeeded int
}

// OK is the AND of every item result.
func (b Batch) OK() bool {
	return b.Succeeded == len(b.Results)
}

// Failed returns the failed results.
func (b Batch) Failed() []Result {
	var out []Result
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// FetchAll downloads every descriptor into dir with at most Workers
// transfers in flight. Two descriptors resolving to the same file are
// rejected: the later one fails without touching disk.
func (c *Client) FetchAll(ctx context.Context, items []manifest.Descriptor, dir string, progress ProgressFunc) Batch {
	batch := Batch{Results: make([]Result, len(items))}
	total := len(items)

	var (
		mu        sync.Mutex
		completed int
		succeeded atomic.Int64
	)
	finish := func(i int, r Result) {
		batch.Results[i] = r
		if r.OK() {
			succeeded.Add(1)
		}
		mu.Lock()
		completed++
		if progress != nil {
			progress(completed, total, r.Name)
		}
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)

	claimed := make(map[string]string, len(items))
	for i, d := range items {
		dest, err := Destination(dir, d)
		if err != nil {
			finish(i, Result{Name: d.Label(), Err: err})
			continue
		}
		key := strings.ToLower(dest)
		if other, dup := claimed[key]; dup {
			finish(i, Result{Name: d.Label(), Path: dest, Err: fmt.Errorf("%s: destination already used by %s", d.FileName, other)})
			continue
		}
		claimed[key] = d.Label()

		g.Go(func() error {
			finish(i, c.FetchAndVerify(ctx, d, dest))
			return nil
		})
	}
	_ = g.Wait()

	batch.Succeeded = int(succeeded.Load())
	return batch
}
