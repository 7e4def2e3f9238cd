package assistant

import "errors"

var (
	// ErrGenerationUnavailable indicates the model could not produce an
	// answer after retries.
	ErrGenerationUnavailable = errors.New("answer generation unavailable")

	// ErrEmptyQuestion indicates the user asked nothing.
	ErrEmptyQuestion = errors.New("question is empty")
)
