package chat

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

var (
	// ErrValidation reports a malformed or missing request field.
	ErrValidation = errors.New("validation error")
	// ErrEmptyCompletion reports a blank conversational reply.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrEmptySummary reports a blank summary reply.
	ErrEmptySummary = errors.New("empty summary")
	// ErrNothingToSummarize is returned by Summarize when memory is empty.
	ErrNothingToSummarize = errors.New("nothing to summarize")
	// ErrNoSummaryAvailable is returned by SaveDiary when no summary could be
	// taken from the cache or generated.
	ErrNoSummaryAvailable = errors.New("no summary available")
	// ErrGatewayFailure wraps provider, network and timeout failures.
	ErrGatewayFailure = errors.New("completion gateway failure")
	// ErrPersistenceFailure wraps diary repository and summary cache failures.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// IsClientError reports whether err should be surfaced as a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEmptyCompletion) ||
		errors.Is(err, ErrEmptySummary) ||
		errors.Is(err, ErrNothingToSummarize) ||
		errors.Is(err, ErrNoSummaryAvailable)
}

func wrap(sentinel error, cause error, sessionID, op string) error {
	return oops.
		In("chat").
		With("session_id", sessionID).
		With("op", op).
		Wrapf(fmt.Errorf("%w: %w", sentinel, cause), "%s", op)
}

func fail(sentinel error, sessionID, op string) error {
	return oops.
		In("chat").
		With("session_id", sessionID).
		With("op", op).
		Wrapf(sentinel, "%s", op)
}
