package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// errBadRequest — тело или параметры запроса не разбираются.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"productId,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Available *int64 `json:"available,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

var badRequestErrors = []error{
	errBadRequest,
	domain.ErrUserRequired,
	domain.ErrItemsRequired,
	domain.ErrAmountNegative,
	domain.ErrItemQtyInvalid,
	domain.ErrItemPriceInvalid,
	domain.ErrItemTotalMismatch,
	domain.ErrAmountMismatch,
	domain.ErrOrderStatusInvalid,
	domain.ErrPaymentMethodInvalid,
	domain.ErrAddressIncomplete,
	domain.ErrEmptyCart,
	domain.ErrQtyInvalid,
	domain.ErrProviderOrderIDRequired,
	domain.ErrPaymentAmountInvalid,
	domain.ErrCurrencyRequired,
	domain.ErrInvalidSignature,
	domain.ErrUnknownOrderOp,
	domain.ErrUnknownCommand,
	payment.ErrMalformedWebhook,
}

var notFoundErrors = []error{
	domain.ErrOrderNotFound,
	domain.ErrProductNotFound,
	domain.ErrPaymentNotFound,
}

var conflictErrors = []error{
	domain.ErrOrderVersionConflict,
	domain.ErrPaymentAlreadyLinked,
	domain.ErrPaymentExists,
	domain.ErrIdempotencyInProgress,
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsInsufficientStock(err), domain.IsIllegalTransition(err), isAny(err, conflictErrors):
		return http.StatusConflict
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorBody(err error, status int) errorResponse {
	if status == http.StatusInternalServerError {
		return errorResponse{Error: "internal error"}
	}

	body := errorResponse{Error: err.Error()}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		available := stock.Available
		body.ProductID = stock.ProductID
		body.Requested = stock.Requested
		body.Available = &available
	}
	var illegal *domain.IllegalTransitionError
	if errors.As(err, &illegal) {
		body.From = string(illegal.From)
		body.To = string(illegal.To)
	}
	return body
}

// writeError пишет ответ с ошибкой; детали 500 остаются только в логе.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.JSON(status, errorBody(err, status))
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody(err, status))
}
