package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// События webhook, которые меняют платёж.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

const (
	defaultCurrency  = "INR"
	defaultListLimit = 20
	maxListLimit     = 100
)

// ErrMalformedWebhook — тело webhook не разбирается.
var ErrMalformedWebhook = errors.New("malformed webhook payload")

// Secrets — ключи подписи провайдера.
type Secrets struct {
	KeySecret     string
	WebhookSecret string
}

// Reconciler сводит локальные записи платежей с состоянием у провайдера.
type Reconciler struct {
	payments domain.PaymentRepository
	provider domain.PaymentProvider
	secrets  Secrets
	logger   *log.Entry
	now      func() time.Time
}

// NewReconciler создаёт сервис платежей.
func NewReconciler(payments domain.PaymentRepository, provider domain.PaymentProvider, secrets Secrets, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "payment")
	}
	return &Reconciler{
		payments: payments,
		provider: provider,
		secrets:  secrets,
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePaymentOrder создаёт заказ у провайдера и локальную запись в статусе created.
func (r *Reconciler) CreatePaymentOrder(ctx context.Context, userID string, amountMinor int64, currency string) (domain.Payment, error) {
	if userID == "" {
		return domain.Payment{}, domain.ErrUserRequired
	}
	if amountMinor <= 0 {
		return domain.Payment{}, domain.ErrPaymentAmountInvalid
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}

	receipt := "rcpt_" + compactID()
	order, err := r.provider.CreateOrder(ctx, amountMinor, currency, receipt)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("create provider order: %w", err)
	}

	now := r.now().UTC()
	payment := domain.Payment{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProviderOrderID: order.ID,
		Status:          domain.PaymentStatusCreated,
		AmountMinor:     amountMinor,
		Currency:        currency,
		Receipt:         receipt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Payment{}, errs[0]
	}
	if err := r.payments.Create(ctx, payment); err != nil {
		return domain.Payment{}, err
	}

	r.logger.WithFields(log.Fields{
		"payment_id":        payment.ID,
		"provider_order_id": payment.ProviderOrderID,
		"amount_minor":      amountMinor,
	}).Info("payment order created")
	return payment, nil
}

// VerifyAndComplete проверяет подпись клиента и продвигает локальный платёж.
// Неверная подпись даёт false без изменений.
func (r *Reconciler) VerifyAndComplete(ctx context.Context, userID, providerOrderID, providerPaymentID, signature string) (bool, error) {
	if !VerifyPayment(r.secrets.KeySecret, providerOrderID, providerPaymentID, signature) {
		r.logger.WithField("provider_order_id", providerOrderID).Warn("payment signature mismatch")
		return false, nil
	}

	payment, err := r.payments.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return false, err
	}
	if payment.UserID != userID {
		return false, domain.ErrPaymentNotFound
	}

	status := domain.PaymentStatusPaid
	remote, err := r.provider.FetchPayment(ctx, providerPaymentID)
	if err != nil {
		// Подпись уже доказала оплату; финальный статус придёт webhook'ом.
		r.logger.WithError(err).WithField("provider_payment_id", providerPaymentID).Warn("fetch payment status failed")
	} else {
		if remote.Status == domain.PaymentStatusCaptured {
			status = domain.PaymentStatusCaptured
		}
		if remote.Method != "" {
			payment.Method = remote.Method
		}
	}

	if payment.ProviderPaymentID == "" {
		payment.ProviderPaymentID = providerPaymentID
	}
	payment.Advance(status, r.now().UTC())
	if err := r.payments.Update(ctx, payment); err != nil {
		return false, err
	}

	r.logger.WithFields(log.Fields{
		"payment_id": payment.ID,
		"status":     payment.Status,
	}).Info("payment verified")
	return true, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

// HandleWebhook проверяет подпись тела и применяет событие провайдера.
// Статус платежа никогда не откатывается назад.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !VerifyWebhook(r.secrets.WebhookSecret, payload, signature) {
		return domain.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	var status domain.PaymentStatus
	switch event.Event {
	case EventPaymentCaptured:
		status = domain.PaymentStatusCaptured
	case EventPaymentFailed:
		status = domain.PaymentStatusFailed
	default:
		r.logger.WithField("event", event.Event).Debug("webhook event ignored")
		return nil
	}

	entity := event.Payload.Payment.Entity
	if entity.ID == "" {
		return fmt.Errorf("%w: payment id is missing", ErrMalformedWebhook)
	}
	return r.upsert(ctx, entity, status)
}

func (r *Reconciler) upsert(ctx context.Context, entity webhookPayment, status domain.PaymentStatus) error {
	now := r.now().UTC()
	logger := r.logger.WithFields(log.Fields{
		"provider_payment_id": entity.ID,
		"provider_order_id":   entity.OrderID,
		"status":              status,
	})

	payment, err := r.payments.GetByProviderPaymentID(ctx, entity.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) && entity.OrderID != "" {
		payment, err = r.payments.GetByProviderOrderID(ctx, entity.OrderID)
	}

	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		if entity.OrderID == "" {
			return domain.ErrProviderOrderIDRequired
		}
		payment = domain.Payment{
			ID:                uuid.NewString(),
			ProviderOrderID:   entity.OrderID,
			ProviderPaymentID: entity.ID,
			Status:            status,
			AmountMinor:       entity.Amount,
			Currency:          strings.ToUpper(entity.Currency),
			Method:            entity.Method,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := r.payments.Create(ctx, payment); err != nil {
			return err
		}
		logger.Info("payment recorded from webhook")
		return nil
	case err != nil:
		return err
	}

	if payment.ProviderPaymentID == "" {
		payment.ProviderPaymentID = entity.ID
	}
	if entity.Method != "" {
		payment.Method = entity.Method
	}
	if !payment.Advance(status, now) {
		logger.WithField("current", payment.Status).Debug("webhook does not advance payment")
		return nil
	}
	if err := r.payments.Update(ctx, payment); err != nil {
		return err
	}
	logger.Info("payment updated from webhook")
	return nil
}

// Get возвращает платёж пользователя; чужой платёж не отличим от отсутствующего.
func (r *Reconciler) Get(ctx context.Context, userID, id string) (domain.Payment, error) {
	payment, err := r.payments.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.UserID != userID {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// ListByUser возвращает платежи пользователя постранично.
func (r *Reconciler) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return r.payments.ListByUser(ctx, userID, limit, offset)
}
