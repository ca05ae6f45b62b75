package api

import (
	"errors"
	"path"

	"connectrpc.com/connect"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// CodeOf maps a service error to its connect code.
func CodeOf(err error) connect.Code {
	switch {
	case errors.Is(err, apperrors.ErrConfiguration):
		return connect.CodeInvalidArgument
	case errors.Is(err, apperrors.ErrTokenExpired):
		return connect.CodeFailedPrecondition
	case errors.Is(err, apperrors.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return connect.CodeAborted
	case errors.Is(err, apperrors.ErrScanInProgress):
		return connect.CodeResourceExhausted
	case errors.Is(err, apperrors.ErrStore), errors.Is(err, apperrors.ErrDelivery):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError converts a service error for the wire. Messages are
// sanitized; unclassified errors are logged in full and replaced with a
// generic message.
func toConnectError(procedure string, err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}

	code := CodeOf(err)
	if code == connect.CodeInternal {
		logging.Error("Unhandled API error",
			logging.String("procedure", procedure),
			logging.Err(err),
		)
		return connect.NewError(code, errors.New(apperrors.GenericError(path.Base(procedure))))
	}
	return connect.NewError(code, apperrors.NewSafeError(err))
}
