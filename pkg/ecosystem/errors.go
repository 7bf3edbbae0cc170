package ecosystem

import (
	"errors"

	"github.com/ojpp/broadlistening/backend/pkg/cursor"
)

var (
	// ErrBusy means an analysis run is already holding the topic's cursor.
	// Callers retry later; runs are never queued.
	ErrBusy = cursor.ErrBusy

	// ErrInvalidInput covers malformed requests such as a non-positive
	// batch size. Nothing has been mutated when it is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTopic is returned for topic ids that do not exist.
	ErrUnknownTopic = errors.New("unknown topic")
)
