package vnpay

// Gateway transaction response codes (vnp_ResponseCode).
const (
	RespCodeSuccess          = "00"
	RespCodeCustomerCancel   = "24"
	RespCodeInsufficientFund = "51"
)

// IPN acknowledgement codes (RspCode). The gateway's retry behavior
// depends on these, so the vocabulary is fixed.
const (
	IPNConfirmSuccess   = "00"
	IPNOrderNotFound    = "01"
	IPNAlreadyConfirmed = "02"
	IPNChecksumFailed   = "97"
	IPNUnknownError     = "99"
)

// IPNResponse is the structured acknowledgement returned to the
// gateway's instant-notification call.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var responseMessages = map[string]string{
	"00": "Transaction successful",
	"07": "Amount deducted, transaction suspected of fraud",
	"09": "Card/account not registered for internet banking",
	"10": "Card/account information authenticated incorrectly more than 3 times",
	"11": "Payment window expired",
	"12": "Card/account is locked",
	"13": "Incorrect transaction OTP",
	"24": "Transaction cancelled by customer",
	"51": "Insufficient account balance",
	"65": "Daily transaction limit exceeded",
	"75": "Payment bank under maintenance",
	"79": "Incorrect payment password entered too many times",
	"99": "Other error",
}

// ResponseMessage maps a gateway response code to a human-readable
// description.
func ResponseMessage(code string) string {
	if msg, ok := responseMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}
