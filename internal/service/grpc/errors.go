package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// codeOf сопоставляет доменную ошибку с кодом gRPC.
func codeOf(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrDiscountNegative),
		errors.Is(err, domain.ErrDiscountTypeInvalid),
		errors.Is(err, domain.ErrDiscountPercentTooLarge):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrItemNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrOrderAlreadyExists):
		return codes.AlreadyExists
	case domain.IsInvalidTransition(err),
		errors.Is(err, domain.ErrStatusUnchanged),
		errors.Is(err, domain.ErrInconsistentStatus),
		errors.Is(err, domain.ErrOrderNotEditable):
		return codes.FailedPrecondition
	case domain.IsVersionConflict(err):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus превращает ошибку сервиса в статус gRPC. Детали внутренних ошибок наружу не уходят.
func (s *OrderService) toStatus(err error, operation, orderID string) error {
	code := codeOf(err)
	if code == codes.OK {
		return nil
	}

	logger := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
		"code":      code.String(),
	})
	if code == codes.Internal {
		logger.Error("operation failed")
		return status.Error(codes.Internal, "internal error")
	}
	logger.Debug("operation rejected")
	return status.Error(code, err.Error())
}
