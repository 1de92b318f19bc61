package similarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/niksmo/storefront/internal/core/domain"
)

// A Source opens the bytes of the latest artifact build.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// A Holder hands out the current index by shared reference. Readers never
// lock; a load swaps in a complete new index or leaves the old one.
type Holder struct {
	cur        atomic.Pointer[Index]
	decodeOpts DecodeOptions
}

type HolderOption func(*Holder)

// WithMaxPayloadBytes bounds the artifacts the holder loads.
func WithMaxPayloadBytes(n uint64) HolderOption {
	return func(h *Holder) {
		h.decodeOpts.MaxPayloadBytes = n
	}
}

func NewHolder(opts ...HolderOption) *Holder {
	h := &Holder{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Index returns the current index or nil when none was loaded.
func (h *Holder) Index() *Index {
	return h.cur.Load()
}

// Load decodes the artifact behind src and installs it.
func (h *Holder) Load(ctx context.Context, src Source) (*Index, error) {
	const op = "Holder.Load"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, src, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close artifact", "op", op, "err", err)
		}
	}()

	idx, err := DecodeWithOptions(rc, h.decodeOpts)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, src, err)
	}

	if err := h.Replace(idx); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, src, err)
	}
	return idx, nil
}

// Replace installs idx unless its build version is not newer than the
// installed one, in which case it returns [ErrStaleArtifact].
func (h *Holder) Replace(idx *Index) error {
	for {
		cur := h.cur.Load()
		if cur != nil && idx.BuildVersion() <= cur.BuildVersion() {
			return fmt.Errorf(
				"%w: build %d, loaded %d",
				ErrStaleArtifact, idx.BuildVersion(), cur.BuildVersion(),
			)
		}
		if h.cur.CompareAndSwap(cur, idx) {
			return nil
		}
	}
}

// TopK queries the current index. Without an index it returns
// [domain.ErrIndexUnavailable].
func (h *Holder) TopK(productID string, k int) ([]domain.ScoredProduct, error) {
	idx := h.cur.Load()
	if idx == nil {
		return nil, domain.ErrIndexUnavailable
	}
	return idx.TopK(productID, k)
}

// Watch reloads src every interval until ctx is done. Failed or stale
// loads keep the installed index.
func (h *Holder) Watch(ctx context.Context, src Source, interval time.Duration) {
	const op = "Holder.Watch"
	log := slog.With("op", op, "source", src.String())

	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		idx, err := h.Load(ctx, src)
		switch {
		case err == nil:
			log.Info("similarity index replaced",
				"buildVersion", idx.BuildVersion(), "products", idx.Len(),
			)
		case errors.Is(err, ErrStaleArtifact):
			log.Debug("no newer similarity build")
		case errors.Is(err, context.Canceled):
			return
		default:
			log.Error("failed to reload similarity index", "err", err)
		}
	}
}
