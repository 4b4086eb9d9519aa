// Package utils provides shared utility helpers used across Brontes.
package utils

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorKind enumerates the error taxonomy callers can errors.As against via
// StageError. Missing-data is recovered locally by callers (it is carried
// here only so a caller that wants to log it still can); the rest
// propagate up to the pipeline stage that surfaces them.
type ErrorKind int

const (
	// MissingData: token decimals unknown, or no pricing available at a
	// block. Callers recover locally, zero the affected value, and set
	// no_pricing_calculated on the bundle — this is not a hard failure.
	MissingData ErrorKind = iota
	// TreeInvariant: trace index gap or missing subtrace. Fatal for the
	// block; the block is skipped.
	TreeInvariant
	// UpstreamIO: a tracer/metadata-store call failed. Retried with
	// backoff by the caller; surfaces as a per-block failure after the
	// retry budget is exhausted.
	UpstreamIO
	// ComposerConflict: two bundles claimed the same tx at equal
	// precedence. The composer's tiebreak is deterministic, so this kind
	// is informational rather than a failure that aborts anything.
	ComposerConflict
	// PipelineFailure: shutdown requested or a sink write failed.
	// Propagates to the executor, which drains in-flight units and exits.
	PipelineFailure
)

func (k ErrorKind) String() string {
	switch k {
	case MissingData:
		return "missing-data"
	case TreeInvariant:
		return "tree-invariant"
	case UpstreamIO:
		return "upstream-io"
	case ComposerConflict:
		return "composer-conflict"
	case PipelineFailure:
		return "pipeline-failure"
	default:
		return "unknown"
	}
}

// StageError carries an ErrorKind plus the block/stage it occurred in, so a
// per-block failure event (spec §7 "structured events including block
// number, stage, and error kind") can be built straight from the error.
type StageError struct {
	Kind        ErrorKind
	BlockNumber uint64
	Stage       string
	Err         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("block %d, stage %s, kind %s: %v", e.BlockNumber, e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError builds a StageError for a failure during stage at
// blockNumber, classified as kind.
func NewStageError(kind ErrorKind, blockNumber uint64, stage string, err error) *StageError {
	return &StageError{Kind: kind, BlockNumber: blockNumber, Stage: stage, Err: err}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *StageError, defaulting to UpstreamIO (the most common unclassified
// failure mode for upstream calls) when err carries no StageError.
func KindOf(err error) (ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return UpstreamIO, false
}
