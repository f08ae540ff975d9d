package admission

import (
	"net/http"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
)

var (
	ErrSessionExpired = apperror.New(apperror.CodeSessionExpired, "session expired, enqueue again", http.StatusGone)
	ErrNotInQueue     = apperror.New(apperror.CodeNotInQueue, "visitor is not waiting in this queue", http.StatusNotFound)
)

// unavailable wraps a store failure so callers can tell it is retryable.
func unavailable(err error) error {
	return apperror.Unavailable("queue store", err)
}
