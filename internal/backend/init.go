package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/module"
)

// DefaultInitTimeout bounds compiled module initialization.
const DefaultInitTimeout = 10 * time.Second

// InitOptions configures compiled backend initialization.
type InitOptions struct {
	Thresholds Thresholds
	PoolBound  int
	Timeout    time.Duration
	// Logger reports modules that could not be closed after a timeout.
	Logger *zap.SugaredLogger
}

// Init is a pending compiled backend initialization. Done is closed when
// it finishes, successfully or not.
type Init struct {
	done     chan struct{}
	compiled *Compiled
	err      error
}

// StartInit loads the module and configures a Compiled backend in the
// background. A load that exceeds the timeout fails with
// module.ErrUnavailable; a module that arrives late is closed.
func StartInit(ctx context.Context, loader module.Loader, opts InitOptions) *Init {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultInitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	i := &Init{done: make(chan struct{})}

	go func() {
		defer close(i.done)
		i.compiled, i.err = initialize(ctx, loader, opts)
	}()
	return i
}

func initialize(ctx context.Context, loader module.Loader, opts InitOptions) (*Compiled, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type loaded struct {
		compiled *Compiled
		err      error
	}
	ch := make(chan loaded, 1)

	go func() {
		mod, err := loader.Load(ctx)
		if err != nil {
			ch <- loaded{err: err}
			return
		}
		c, err := NewCompiled(mod, opts.Thresholds, opts.PoolBound)
		if err != nil {
			ch <- loaded{err: multierr.Append(err, mod.Close(context.Background()))}
			return
		}
		ch <- loaded{compiled: c}
	}()

	select {
	case l := <-ch:
		if l.err != nil && !errors.Is(l.err, module.ErrUnavailable) {
			return nil, errors.Wrapf(module.ErrUnavailable, "%v", l.err)
		}
		return l.compiled, l.err
	case <-ctx.Done():
		go func() {
			l := <-ch
			if l.compiled == nil {
				return
			}
			if err := l.compiled.Close(context.Background()); err != nil {
				opts.Logger.Warnw("failed to close late compiled backend", "error", err)
			}
		}()
		return nil, errors.Wrapf(module.ErrUnavailable, "initialization: %v", ctx.Err())
	}
}

// Done is closed when initialization finishes.
func (i *Init) Done() <-chan struct{} {
	return i.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (i *Init) Result() (*Compiled, error) {
	return i.compiled, i.err
}

// Wait blocks until initialization finishes or ctx is done.
func (i *Init) Wait(ctx context.Context) (*Compiled, error) {
	select {
	case <-i.done:
		return i.compiled, i.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
