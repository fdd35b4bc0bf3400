package layout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aitutor/pdf-tutor/pkg/fn"
)

var (
	// ErrUnresolved means no pool produced bytes for an image reference.
	ErrUnresolved = errors.New("layout: image not resolvable")
	// ErrNotImage means the reference resolved to something that is not a
	// raster image (a form XObject, for instance).
	ErrNotImage = errors.New("layout: xobject is not an image")
)

// DefaultImageTimeout bounds one image lookup.
const DefaultImageTimeout = 5 * time.Second

// Image is a resolved raster image. Data is either an encoded image (PNG,
// JPEG) or raw pixel samples of Width x Height.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Pool looks up an image resource by name. A pool that does not hold the
// name returns (nil, nil).
type Pool interface {
	Lookup(ctx context.Context, name string) (*Image, error)
}

// PoolFunc adapts a function to Pool.
type PoolFunc func(ctx context.Context, name string) (*Image, error)

func (f PoolFunc) Lookup(ctx context.Context, name string) (*Image, error) { return f(ctx, name) }

// Resolver tries every pool concurrently and takes the first success.
type Resolver struct {
	pools   []Pool
	timeout time.Duration
}

// NewResolver creates a Resolver. timeout <= 0 uses DefaultImageTimeout.
func NewResolver(timeout time.Duration, pools ...Pool) *Resolver {
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	return &Resolver{pools: pools, timeout: timeout}
}

type lookup struct {
	img *Image
	err error
}

// Resolve returns the image named name, or a failure once every pool has
// answered without one or the deadline passes. Pools still running after
// that are abandoned; their answers are discarded.
func (r *Resolver) Resolve(ctx context.Context, name string) fn.Result[Image] {
	if len(r.pools) == 0 {
		return fn.Err[Image](fmt.Errorf("%w: %s: no resource pools", ErrUnresolved, name))
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answers := make(chan lookup, len(r.pools))
	for _, p := range r.pools {
		go func(p Pool) {
			img, err := p.Lookup(ctx, name)
			answers <- lookup{img, err}
		}(p)
	}

	var failures []error
	for range r.pools {
		select {
		case a := <-answers:
			if a.err == nil && a.img != nil {
				return fn.Ok(*a.img)
			}
			if a.err != nil {
				failures = append(failures, a.err)
			}
		case <-ctx.Done():
			return fn.Err[Image](fmt.Errorf("%w: %s: %w", ErrUnresolved, name, ctx.Err()))
		}
	}

	for _, err := range failures {
		if errors.Is(err, ErrNotImage) {
			return fn.Err[Image](fmt.Errorf("%s: %w", name, ErrNotImage))
		}
	}
	if len(failures) > 0 {
		return fn.Err[Image](fmt.Errorf("%w: %s: %w", ErrUnresolved, name, errors.Join(failures...)))
	}
	return fn.Err[Image](fmt.Errorf("%w: %s", ErrUnresolved, name))
}
