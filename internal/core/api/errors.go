package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// Validation and evaluation errors map to INVALID_ARGUMENT.
// Unknown rules map to NOT_FOUND.
// Context timeouts map to DEADLINE_EXCEEDED, cancellation to CANCELED.
// Everything else is a database failure and maps to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		validationErr  *rules.ValidationError
		validationErrs rules.ValidationErrors
		evaluationErr  *rules.EvaluationError
	)
	switch {
	case errors.Is(err, types.ErrRuleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &validationErr), errors.As(err, &validationErrs),
		errors.Is(err, types.ErrEmptyRuleName), errors.Is(err, types.ErrInvalidRuleStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &evaluationErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
