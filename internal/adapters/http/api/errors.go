package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/movelab/stance/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// NewKind tags a sentinel kind with the operation that raised it.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// Wrap annotates an upstream error with the operation that raised it.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// writeDomainError translates registry and store kinds into HTTP responses.
// Anything unrecognized is a 500.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, types.ErrUnknownParticipant):
		writeError(w, http.StatusBadRequest, "unknown_participant", Wrap(op, err))
	case errors.Is(err, types.ErrInvalidMode), errors.Is(err, types.ErrNoBindings):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, types.ErrParticipantBusy):
		writeError(w, http.StatusConflict, "participant_busy", Wrap(op, err))
	case errors.Is(err, types.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	case errors.Is(err, types.ErrStoreDisabled):
		writeError(w, http.StatusServiceUnavailable, "store_disabled", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
