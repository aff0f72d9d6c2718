package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

// digNoReply is dig's exit status for "no reply from server".
const digNoReply = 9

// DigRunner shells out to dig(1) in +short mode.
type DigRunner struct {
	Path string
	log  *zap.Logger
}

// NewDigRunner returns a runner for the dig binary at path ("" = "dig" from PATH).
func NewDigRunner(path string, log *zap.Logger) *DigRunner {
	if strings.TrimSpace(path) == "" {
		path = "dig"
	}
	return &DigRunner{Path: path, log: logging.OrNop(log).Named("dig")}
}

// Query runs dig once and returns its standard output.
func (d *DigRunner) Query(ctx context.Context, recordType model.RecordType, target, nameserver string, timeout time.Duration) (string, error) {
	timeout = effectiveTimeout(timeout)
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := digArgs(recordType, target, nameserver, timeout)
	cmd := exec.CommandContext(qctx, d.Path, args...)
	cmd.WaitDelay = 250 * time.Millisecond
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s %s @%s after %s", ErrQueryTimeout, recordType, target, nameserver, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == digNoReply {
			return "", fmt.Errorf("%w: %s %s @%s: no reply", ErrQueryTimeout, recordType, target, nameserver)
		}
		d.log.Debug("dig failed", zap.Strings("args", args), zap.Error(err), zap.String("stderr", strings.TrimSpace(stderr.String())))
		return "", fmt.Errorf("%w: %s %v: %v output=%s", ErrQueryFailed, d.Path, args, err, strings.TrimSpace(stderr.String()))
	}
	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		return "", nil
	}
	return out, nil
}

// digArgs ends with the [@nameserver, target, type] triple.
func digArgs(recordType model.RecordType, target, nameserver string, timeout time.Duration) []string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return []string{
		"+short",
		"+time=" + strconv.Itoa(secs),
		"+tries=1",
		"@" + nameserver,
		target,
		string(recordType),
	}
}
