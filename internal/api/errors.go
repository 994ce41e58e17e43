package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quantlab/internal/config"
	"quantlab/internal/optimizer"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
)

// invalidErrors are caller mistakes rather than server faults.
var invalidErrors = []error{
	ErrInvalidRequest,
	config.ErrInvalid,
	strategy.ErrUnknownStrategy,
	strategy.ErrInvalidParams,
	strategy.ErrBarOrder,
	optimizer.ErrInvalidParamSpace,
	optimizer.ErrUnknownMetric,
	optimizer.ErrInvalidConfig,
}

func isInvalid(err error) bool {
	for _, target := range invalidErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// grpcCode maps a service error to a gRPC status code.
func grpcCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case isInvalid(err):
		return codes.InvalidArgument
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrNoData):
		return codes.NotFound
	case errors.Is(err, ErrRunsDisabled):
		return codes.Unimplemented
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// grpcError converts err to a status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(grpcCode(err), err.Error())
}

// httpStatus maps a service error to an HTTP status and error code.
func httpStatus(err error) (int, string) {
	switch grpcCode(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest, "INVALID_REQUEST"
	case codes.NotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case codes.Unimplemented:
		return http.StatusNotImplemented, "NOT_IMPLEMENTED"
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusRequestTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
