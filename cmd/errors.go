package cmd

import (
	"errors"
	"fmt"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var errResolution = errors.New("invalid resolution (want server or client)")

func errInvalidResolution(s string) error {
	return fmt.Errorf("%w: %q", errResolution, s)
}

// errorCode maps an error to a structured output code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, engine.ErrOffline):
		return output.ErrCodeOffline
	case errors.Is(err, engine.ErrSyncInProgress):
		return output.ErrCodeSyncBusy
	case errors.Is(err, engine.ErrConflictResolved):
		return output.ErrCodeAlreadyClosed
	case errors.Is(err, errResolution),
		errors.Is(err, models.ErrInvalidResourceType),
		errors.Is(err, models.ErrInvalidAction),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, conflict.ErrUnknownStrategy):
		return output.ErrCodeInvalidInput
	}
	return output.ErrCodeDatabaseError
}

// reportError prints err as JSON or styled text and returns it.
func reportError(jsonOut bool, err error) error {
	if jsonOut {
		output.JSONError(errorCode(err), err.Error())
	} else {
		output.Error("%v", err)
	}
	return err
}
