package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/memebot/internal/domain"
)

var transientMarkers = []string{
	"timeout",
	"timed out",
	"too many requests",
	"rate limit",
	"header not found",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"service unavailable",
	"bad gateway",
}

// IsTransient reports whether err is worth retrying: timeouts, dropped
// connections and node throttling. Reverts and invariant violations never
// are.
func IsTransient(err error) bool {
	if err == nil || IsRevert(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errStaleNonce) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, domain.ErrRateLimited) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsRevert reports whether the node rejected the call as a revert.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

// isAlreadySubmitted reports whether a broadcast failed because the same
// nonce is already pending or mined.
func isAlreadySubmitted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

// errStaleNonce marks a first broadcast rejected for a nonce the local
// counter handed out; the tracker re-reads and the attempt is retried.
var errStaleNonce = errors.New("stale nonce")
