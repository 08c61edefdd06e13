package vnpay

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Callback is the strict parsed form of a gateway callback parameter
// bag. Both the browser-return and IPN channels carry this shape.
type Callback struct {
	OrderCode     string
	ResponseCode  string
	TransactionNo string
	Amount        decimal.Decimal
	BankCode      string
	PayDate       string
}

// Success reports whether the callback carries a successful payment
// outcome.
func (c *Callback) Success() bool {
	return c.ResponseCode == RespCodeSuccess
}

// ParseCallback extracts the required fields from a verified parameter
// set. The amount is converted back from the gateway's minor-unit
// scale. Missing required fields fail the parse; callers treat that the
// same as a verification failure.
func ParseCallback(params map[string]string) (*Callback, error) {
	code := params["vnp_TxnRef"]
	if code == "" {
		return nil, fmt.Errorf("missing vnp_TxnRef")
	}

	respCode := params["vnp_ResponseCode"]
	if respCode == "" {
		return nil, fmt.Errorf("missing vnp_ResponseCode")
	}

	amount, err := ScaledAmount(params["vnp_Amount"])
	if err != nil {
		return nil, err
	}

	return &Callback{
		OrderCode:     code,
		ResponseCode:  respCode,
		TransactionNo: params["vnp_TransactionNo"],
		Amount:        amount,
		BankCode:      params["vnp_BankCode"],
		PayDate:       params["vnp_PayDate"],
	}, nil
}
