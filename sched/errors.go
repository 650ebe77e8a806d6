package sched

import (
	"errors"
	"fmt"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// ErrAllFailed is returned by Submit when every chunk group in the call
// failed. Partial failures are reported through Summary.Failed instead.
var ErrAllFailed = errors.New("sched: all chunk groups failed")

// ChunkUnavailableError marks a single group whose chunk could not be
// loaded. It is collected per group, not fatal for the whole submission.
type ChunkUnavailableError struct {
	Key chunk.Key
	Err error
}

func (e *ChunkUnavailableError) Error() string {
	return fmt.Sprintf("sched: chunk %s unavailable: %v", e.Key, e.Err)
}

func (e *ChunkUnavailableError) Unwrap() error { return e.Err }

// Failure pairs a failed chunk group with its error so callers can retry
// just the affected chunks.
type Failure struct {
	Key chunk.Key
	Err error
}
