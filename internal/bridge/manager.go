package bridge

import (
	"context"
	"fmt"
)

type ManagerOptions struct {
	// RequireInitialized fails with ErrInitFailed instead of calling fn when
	// initialization does not succeed.
	RequireInitialized bool
}

// Use builds a bridge, initializes it, runs fn and closes the bridge on every
// path out, including a panic in fn. fn receives the result of Initialize.
func Use(ctx context.Context, cfg Config, opts ManagerOptions, fn func(b *Bridge, ok bool) error) (err error) {
	b, err := New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close bridge: %w", closeErr)
		}
	}()

	ok := b.Initialize(ctx)
	if !ok && opts.RequireInitialized {
		return fmt.Errorf("%w: %w", ErrInitFailed, b.Err())
	}
	return fn(b, ok)
}
