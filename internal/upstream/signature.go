package upstream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	HeaderSignature        = "X-Webhook-Hmac-Sha256"
	HeaderShopifySignature = "X-Shopify-Hmac-Sha256"
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderShopifyWebhookID = "X-Shopify-Webhook-Id"
)

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery signature in constant time. An empty secret or
// signature never verifies.
func Verify(secret string, body []byte, signature string) bool {
	secret = strings.TrimSpace(secret)
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}

// SignatureFromHeaders returns the first signature header present.
func SignatureFromHeaders(headers http.Header) string {
	if sig := strings.TrimSpace(headers.Get(HeaderSignature)); sig != "" {
		return sig
	}
	return strings.TrimSpace(headers.Get(HeaderShopifySignature))
}

// DeliveryIDFromHeaders returns the upstream delivery id used for redelivery dedupe.
func DeliveryIDFromHeaders(headers http.Header) string {
	if id := strings.TrimSpace(headers.Get(HeaderWebhookID)); id != "" {
		return id
	}
	return strings.TrimSpace(headers.Get(HeaderShopifyWebhookID))
}
