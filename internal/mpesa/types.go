package mpesa

import (
	"errors"
	"fmt"
)

const (
	TransactionTypePayBill = "CustomerPayBillOnline"

	// ResponseAccepted means the push was queued on the handset, not that it was paid.
	ResponseAccepted = "0"

	timestampLayout = "20060102150405"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushRequest is the processrequest body.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == ResponseAccepted
}

func (r *STKPushRequest) Validate() error {
	if r.PhoneNumber == "" {
		return errors.New("phone number is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.CallBackURL == "" {
		return errors.New("callback url is required")
	}
	return nil
}

// GatewayError is returned for any non-200 or unreadable answer from the
// gateway. Body holds the upstream response verbatim.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mpesa %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// CallbackItem is one CallbackMetadata entry. Value is a number or a string
// depending on Name.
type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackEnvelope is the body Daraja posts to CallBackURL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// SandboxCallback builds a callback shaped like the sandbox sends it. Failed
// results carry no metadata.
func SandboxCallback(merchantRequestID, checkoutRequestID string, resultCode int, amount int64, receipt, phone, transactionDate string) CallbackEnvelope {
	var env CallbackEnvelope
	env.Body.STKCallback = STKCallback{
		MerchantRequestID: merchantRequestID,
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        resultCode,
		ResultDesc:        "The service request is processed successfully.",
	}
	if resultCode != 0 {
		env.Body.STKCallback.ResultDesc = "Request cancelled by user"
		return env
	}
	env.Body.STKCallback.CallbackMetadata = &CallbackMetadata{Item: []CallbackItem{
		{Name: "Amount", Value: amount},
		{Name: "MpesaReceiptNumber", Value: receipt},
		{Name: "TransactionDate", Value: transactionDate},
		{Name: "PhoneNumber", Value: phone},
	}}
	return env
}
