package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

// EventPaymentIntentSucceeded is the only gateway event kind consumed.
const EventPaymentIntentSucceeded = "payment_intent.succeeded"

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "Gateway-Signature"

// ErrInvalidSignature indicates a webhook body that does not match its signature.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// GatewayEvent is the parsed part of a gateway callback.
type GatewayEvent struct {
	ID        string
	Type      string
	IntentID  string
	InvoiceID int64
	Raw       []byte
}

type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseGatewayEvent decodes a callback body. A missing or non-numeric
// metadata.invoice_id leaves InvoiceID at zero, which the reconciler treats as
// an unknown invoice.
func ParseGatewayEvent(body []byte) (GatewayEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return GatewayEvent{}, fmt.Errorf("%w: decode gateway event: %v", billing.ErrValidation, err)
	}
	if w.Type == "" {
		return GatewayEvent{}, fmt.Errorf("%w: gateway event type missing", billing.ErrValidation)
	}
	evt := GatewayEvent{ID: w.ID, Type: w.Type, IntentID: w.Data.Object.ID, Raw: body}
	if raw, ok := w.Data.Object.Metadata["invoice_id"]; ok {
		if id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && id > 0 {
			evt.InvoiceID = id
		}
	}
	return evt, nil
}

// Sign returns the hex signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against body. An empty secret disables the check.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}
