package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/solatis/segmentkeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Auth errors are mapped in the auth package interceptor.
// Everything a handler returns goes through toStatus.

// errInvalidArgument marks request validation failures.
var errInvalidArgument = errors.New("invalid argument")

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidArgument, fmt.Sprintf(format, args...))
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, errInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrRuleInstanceNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrRuleNotRegistered):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrResourceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// int64Field reads a required positive id sent as a number or decimal string.
// Numbers above 2^53 lose precision in JSON, so large ids must be strings.
func int64Field(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, invalidArgument("%s is required", name)
	}

	var id int64
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f != math.Trunc(f) || f > 1<<53 || f < -(1<<53) {
			return 0, invalidArgument("%s must be an integer", name)
		}
		id = int64(f)
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, invalidArgument("%s must be a decimal integer", name)
		}
		id = parsed
	default:
		return 0, invalidArgument("%s must be a number or string", name)
	}

	if id <= 0 {
		return 0, invalidArgument("%s must be positive", name)
	}
	return id, nil
}
