// Package gateway signs and verifies payment gateway deposit postbacks.
//
// A postback is a form-encoded request. The signature is a hex HMAC-SHA256
// over "k=v" pairs of every other field, sorted by key and joined with "&".
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Ashenafi-pixel/casino-settlement/money"
)

const SignatureField = "signature"

var (
	ErrUnsigned      = errors.New("postback is not signed")
	ErrBadSignature  = errors.New("postback signature mismatch")
	ErrMalformed     = errors.New("malformed postback")
	ErrNotConfigured = errors.New("gateway secret not configured")
)

// Postback is a confirmed deposit reported by the gateway.
type Postback struct {
	UserID    string       `json:"user_id"`
	Amount    money.Amount `json:"amount"`
	Reference string       `json:"reference"`
}

func (p Postback) values() url.Values {
	v := url.Values{}
	v.Set("user_id", p.UserID)
	v.Set("amount", p.Amount.String())
	v.Set("reference", p.Reference)
	return v
}

// Sign returns the signature for v, ignoring any signature field already set.
func Sign(secret string, v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == SignatureField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v.Get(k))
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(b.String()))
	return hex.EncodeToString(m.Sum(nil))
}

func Verify(secret string, v url.Values) error {
	if secret == "" {
		return ErrNotConfigured
	}
	got := v.Get(SignatureField)
	if got == "" {
		return ErrUnsigned
	}
	want := Sign(secret, v)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

// ParsePostback verifies and decodes a postback request.
func ParsePostback(r *http.Request, secret string) (*Postback, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := Verify(secret, r.PostForm); err != nil {
		return nil, err
	}
	amount, err := money.Parse(r.PostForm.Get("amount"))
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrMalformed, err)
	}
	p := &Postback{
		UserID:    r.PostForm.Get("user_id"),
		Amount:    amount,
		Reference: r.PostForm.Get("reference"),
	}
	if p.UserID == "" || p.Reference == "" || p.Amount <= 0 {
		return nil, ErrMalformed
	}
	return p, nil
}

// Client posts signed deposits to a postback endpoint. The server tests and
// the local gateway simulator use it.
type Client struct {
	endpoint string
	secret   string
	http     *http.Client
}

type Response struct {
	StatusCode int
	Body       json.RawMessage
}

func NewClient(endpoint, secret string) *Client {
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Deposit(ctx context.Context, p Postback) (*Response, error) {
	values := p.values()
	values.Set(SignatureField, Sign(c.secret, values))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode postback response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
