// internal/handler/errors.go
package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

// grpcError maps predictor errors to gRPC status errors. Inference failures
// carry a generic message; the detail is in the server log.
func grpcError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, predictor.ErrUnknownApp):
		return status.Error(codes.NotFound, err.Error())

	case schema.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, predictor.ErrModelUnavailable):
		return status.Error(codes.FailedPrecondition, "model unavailable")

	case errors.Is(err, predictor.ErrInferenceFailure):
		return status.Error(codes.Internal, "prediction failed")

	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// internalError creates an Internal gRPC error
func internalError(format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, format, args...)
}
