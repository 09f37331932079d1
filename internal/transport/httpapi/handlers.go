package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerSignature      = "X-Razorpay-Signature"
	maxWebhookBody       = 1 << 20
)

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(c, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name))
		return 0, false
	}
	return v, true
}

func (h *handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Checkout.Checkout(c.Request.Context(), actorFrom(c).UserID, checkout.Request{
		Address:           req.Address,
		PaymentMethod:     req.PaymentMethod,
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		IdempotencyKey:    c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (h *handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListByUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(orders))
}

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) orderTimeline(c *gin.Context) {
	events, err := h.svc.Orders.Timeline(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{
			Op:       string(e.Op),
			From:     string(e.From),
			Status:   string(e.Status),
			ActorID:  e.ActorID,
			Reason:   e.Reason,
			Occurred: e.Occurred,
		})
	}
	c.JSON(http.StatusOK, out)
}

// transition принимает запрос перехода; 202 означает только постановку в очередь.
func (h *handler) transition(op domain.OrderOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionRequest
		if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
			return
		}

		orderID := c.Param("id")
		if err := h.svc.Orders.RequestTransition(c.Request.Context(), actorFrom(c), orderID, op, req.Reason); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted", OrderID: orderID, Op: op})
	}
}

func (h *handler) adminListOrders(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	orders, err := h.svc.Orders.List(c.Request.Context(), actorFrom(c), domain.OrderFilter{
		Status: domain.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(orders))
}

func (h *handler) purchases(c *gin.Context) {
	ids, err := h.svc.Orders.Purchases(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productIds": ids})
}

func (h *handler) getCart(c *gin.Context) {
	snapshot, err := h.svc.Carts.Snapshot(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *handler) requestCart(c *gin.Context, cmd domain.CartCommand) {
	cmd.UserID = actorFrom(c).UserID
	if err := h.svc.Carts.Request(c.Request.Context(), cmd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "op": cmd.Op})
}

func (h *handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	h.requestCart(c, domain.CartCommand{Op: domain.CartOpAdd, ProductID: req.ProductID, Qty: req.Qty})
}

func (h *handler) updateCartItem(c *gin.Context) {
	var req cartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	h.requestCart(c, domain.CartCommand{Op: domain.CartOpUpdate, ProductID: c.Param("productId"), Qty: req.Qty})
}

func (h *handler) removeCartItem(c *gin.Context) {
	h.requestCart(c, domain.CartCommand{Op: domain.CartOpRemove, ProductID: c.Param("productId")})
}

func (h *handler) clearCart(c *gin.Context) {
	h.requestCart(c, domain.CartCommand{Op: domain.CartOpClear})
}

func (h *handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *handler) upsertProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.svc.Catalog.Upsert(c.Request.Context(), domain.Product{
		ID:         c.Param("id"),
		Name:       req.Name,
		PriceMinor: req.PriceMinor,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *handler) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.Payments.CreatePaymentOrder(c.Request.Context(), actorFrom(c).UserID, req.AmountMinor, req.Currency)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := newPaymentResponse(p)
	resp.KeyID = h.svc.PaymentKeyID
	c.JSON(http.StatusCreated, resp)
}

func (h *handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	ok, err := h.svc.Payments.VerifyAndComplete(c.Request.Context(), actorFrom(c).UserID, req.ProviderOrderID, req.ProviderPaymentID, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": ok})
}

func (h *handler) listPayments(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	payments, err := h.svc.Payments.ListByUser(c.Request.Context(), actorFrom(c).UserID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, newPaymentResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getPayment(c *gin.Context) {
	p, err := h.svc.Payments.Get(c.Request.Context(), actorFrom(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaymentResponse(p))
}

// paymentWebhook не требует токена: подлинность подтверждает подпись тела.
func (h *handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := h.svc.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(headerSignature)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
