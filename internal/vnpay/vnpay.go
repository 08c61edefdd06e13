// Package vnpay implements the VNPay hosted-checkout protocol: building
// signed redirect URLs and verifying the signature on return/IPN
// callbacks. Canonicalization must stay byte-identical between signing
// and verifying or every payment confirmation silently fails.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	version  = "2.1.0"
	command  = "pay"
	locale   = "vn"
	currency = "VND"

	// paymentWindow is how long a signed payment URL stays valid.
	paymentWindow = 15 * time.Minute

	// dateLayout is VNPay's yyyyMMddHHmmss timestamp format.
	dateLayout = "20060102150405"

	hashField     = "vnp_SecureHash"
	hashTypeField = "vnp_SecureHashType"
)

// Client signs outgoing payment requests and verifies incoming
// callbacks for a single merchant.
type Client struct {
	tmnCode    string
	hashSecret []byte
	payURL     string
	returnURL  string
}

// NewClient creates a gateway client for one merchant terminal.
func NewClient(tmnCode, hashSecret, payURL, returnURL string) *Client {
	return &Client{
		tmnCode:    tmnCode,
		hashSecret: []byte(hashSecret),
		payURL:     payURL,
		returnURL:  returnURL,
	}
}

// BuildPaymentURL assembles and signs the redirect URL that sends the
// customer to the gateway for an order. The amount is scaled to the
// gateway's minor-unit convention (x100). now pins the creation and
// expiry timestamps so callers can control the validity window.
func (c *Client) BuildPaymentURL(order *models.Order, clientIP string, now time.Time) string {
	params := map[string]string{
		"vnp_Version":    version,
		"vnp_Command":    command,
		"vnp_TmnCode":    c.tmnCode,
		"vnp_Locale":     locale,
		"vnp_CurrCode":   currency,
		"vnp_TxnRef":     order.OrderCode,
		"vnp_OrderInfo":  fmt.Sprintf("Thanh toan don hang %s", order.OrderCode),
		"vnp_OrderType":  "other",
		"vnp_Amount":     strconv.FormatInt(order.TotalAmount.Shift(2).IntPart(), 10),
		"vnp_ReturnUrl":  c.returnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(dateLayout),
		"vnp_ExpireDate": now.Add(paymentWindow).Format(dateLayout),
	}

	signData := canonicalize(params)
	params[hashField] = c.sign(signData)

	return c.payURL + "?" + canonicalize(params)
}

// VerifySignature checks the signature on an incoming callback
// parameter set. Missing or malformed input is a verification failure,
// never an error.
func (c *Client) VerifySignature(params map[string]string) bool {
	signature, ok := params[hashField]
	if !ok || signature == "" {
		return false
	}

	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	unsigned := make(map[string]string, len(params))
	for k, v := range params {
		if k == hashField || k == hashTypeField {
			continue
		}
		unsigned[k] = v
	}

	mac := hmac.New(sha512.New, c.hashSecret)
	mac.Write([]byte(canonicalize(unsigned)))

	return hmac.Equal(mac.Sum(nil), received)
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, c.hashSecret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalize produces the deterministic query string the gateway
// signs: keys and values percent-encoded with spaces as '+', pairs
// sorted lexicographically by encoded key.
func canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	encoded := make(map[string]string, len(params))
	for k, v := range params {
		ek := encode(k)
		keys = append(keys, ek)
		encoded[ek] = encode(v)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(encoded[k])
	}
	return b.String()
}

// encode percent-encodes with the '+'-for-space substitution the
// gateway expects on both sides of the exchange.
func encode(s string) string {
	return url.QueryEscape(s)
}

// ScaledAmount converts a gateway minor-unit amount string back into
// the order currency. Fails on non-numeric input.
func ScaledAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d.Shift(-2), nil
}
