// Package overlay reads overlay-network membership (self + peers and their
// overlay addresses).
package overlay

import (
	"context"
	"errors"

	"tailbeacon/pkg/model"
)

// ErrStatusUnavailable means the overlay client is missing, not running, or
// reported something we cannot use.
var ErrStatusUnavailable = errors.New("overlay status unavailable")

// StatusSource reads the current membership table. Implementations must not
// cache: membership changes during a session.
type StatusSource interface {
	Read(ctx context.Context) (model.OverlayStatus, error)
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context) (model.OverlayStatus, error)

func (f StatusFunc) Read(ctx context.Context) (model.OverlayStatus, error) { return f(ctx) }
