package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Callback is the normalized stkCallback envelope. Every field is optional
// on the wire; Parse never fails on a missing key.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	HasResultCode     bool
	ResultDesc        string
	Items             map[string]json.RawMessage
}

type callbackEnvelope struct {
	Body *struct {
		STKCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes a gateway callback. The returned Callback is always
// usable; the error reports why it cannot be matched to an entry.
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return cb, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return cb, fmt.Errorf("%w: missing Body.stkCallback", ErrInvalidCallback)
	}

	stk := env.Body.STKCallback
	cb.MerchantRequestID = strings.TrimSpace(stk.MerchantRequestID)
	cb.CheckoutRequestID = strings.TrimSpace(stk.CheckoutRequestID)
	cb.ResultDesc = stk.ResultDesc
	cb.Items = make(map[string]json.RawMessage)
	if stk.CallbackMetadata != nil {
		for _, item := range stk.CallbackMetadata.Item {
			if item.Name != "" {
				cb.Items[item.Name] = item.Value
			}
		}
	}

	// only the JSON number 0 is success; strings and missing codes settle as failed
	if code, err := strconv.Atoi(string(bytes.TrimSpace(stk.ResultCode))); err == nil {
		cb.ResultCode = code
		cb.HasResultCode = true
	}

	if cb.MerchantRequestID == "" || cb.CheckoutRequestID == "" {
		return cb, fmt.Errorf("%w: missing correlation ids", ErrInvalidCallback)
	}
	return cb, nil
}

func (c Callback) Succeeded() bool {
	return c.HasResultCode && c.ResultCode == 0
}

// Item returns a metadata value as text, unquoting JSON strings.
func (c Callback) Item(name string) (string, bool) {
	raw, ok := c.Items[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(bytes.TrimSpace(raw)), true
}

// Amount is the settled amount reported by the gateway, if present and numeric.
func (c Callback) Amount() (decimal.Decimal, bool) {
	v, ok := c.Item("Amount")
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (c Callback) Receipt() string {
	v, _ := c.Item("MpesaReceiptNumber")
	return v
}
