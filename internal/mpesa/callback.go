package mpesa

import "fmt"

// CallbackEnvelope is the nested shape Daraja POSTs to the callback URL.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	StkCallback *StkCallback `json:"stkCallback"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive untyped: receipt numbers are strings but
// amounts, dates and phone numbers come as JSON numbers.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

func (cb *StkCallback) Succeeded() bool {
	return cb.ResultCode == 0
}

// MetadataValue returns the named entry from the callback's item list,
// rendered as a string, or "" when absent.
func (cb *StkCallback) MetadataValue(name string) string {
	if cb.CallbackMetadata == nil {
		return ""
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name != name || item.Value == nil {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			if v == float64(int64(v)) {
				return fmt.Sprintf("%d", int64(v))
			}
			return fmt.Sprintf("%v", v)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func (cb *StkCallback) ReceiptNumber() string {
	return cb.MetadataValue("MpesaReceiptNumber")
}

// CallbackAck is the fixed acknowledgement Daraja expects. Anything else
// triggers its redelivery logic, so the handler returns this even when
// processing failed internally.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var AckSuccess = CallbackAck{ResultCode: 0, ResultDesc: "Success"}
