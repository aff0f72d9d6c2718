// Package resolver issues single DNS-SD queries against a peer's resolver.
package resolver

import (
	"context"
	"errors"
	"time"

	"tailbeacon/pkg/model"
)

var (
	// ErrQueryTimeout means no answer arrived within the query timeout.
	ErrQueryTimeout = errors.New("dns query timed out")
	// ErrQueryFailed covers every other failure to obtain an answer.
	ErrQueryFailed = errors.New("dns query failed")
)

// DefaultQueryTimeout applies when a caller passes a non-positive timeout.
const DefaultQueryTimeout = time.Second

// QueryRunner issues exactly one query per call. An empty answer is returned
// as "" with a nil error; callers own any retry policy.
type QueryRunner interface {
	Query(ctx context.Context, recordType model.RecordType, target, nameserver string, timeout time.Duration) (string, error)
}

// QueryFunc adapts a plain function to QueryRunner.
type QueryFunc func(ctx context.Context, recordType model.RecordType, target, nameserver string, timeout time.Duration) (string, error)

func (f QueryFunc) Query(ctx context.Context, recordType model.RecordType, target, nameserver string, timeout time.Duration) (string, error) {
	return f(ctx, recordType, target, nameserver, timeout)
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultQueryTimeout
	}
	return timeout
}
