package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/razorpay/razorpay-go/utils"
)

// VerifyPayment проверяет подпись checkout: HMAC-SHA256 (hex) над "orderId|paymentId".
func VerifyPayment(secret, providerOrderID, providerPaymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   providerOrderID,
		"razorpay_payment_id": providerPaymentID,
	}, signature, secret)
}

// VerifyWebhook проверяет подпись тела webhook.
func VerifyWebhook(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(payload), signature, secret)
}

// Sign считает подпись так же, как провайдер; нужна фейковому провайдеру и тестам.
func Sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayment подписывает пару заказ/платёж провайдера.
func SignPayment(secret, providerOrderID, providerPaymentID string) string {
	return Sign(secret, []byte(providerOrderID+"|"+providerPaymentID))
}
