package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stayhold/internal/adapters/observability"
	"stayhold/internal/domain"
)

// Client is the opaque capture step at the payment gateway. Capture is a
// write: it is attempted exactly once per call, never retried here — the
// Reference field carries the idempotency key so the gateway can dedupe a
// caller-level retry of the whole checkout.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 30 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type declineBody struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (c *Client) Capture(ctx context.Context, req domain.CaptureRequest) (domain.PaymentProof, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.PaymentProof{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.PaymentProof{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/captures", bytes.NewReader(payload))
	if err != nil {
		return domain.PaymentProof{}, err
	}
	httpReq.Header.Set("X-API-Key", c.key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	start := time.Now()
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PaymentProof{}, ctx.Err()
		}
		return domain.PaymentProof{}, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("payment", "capture", resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var proof domain.PaymentProof
		if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
			return domain.PaymentProof{}, fmt.Errorf("decode capture response: %w", err)
		}
		if proof.PaymentID == "" {
			return domain.PaymentProof{}, fmt.Errorf("gateway returned no payment id")
		}
		return proof, nil

	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		var d declineBody
		_ = json.NewDecoder(resp.Body).Decode(&d)
		if d.Code == "" {
			d.Code = "declined"
		}
		return domain.PaymentProof{}, &domain.PaymentError{Code: d.Code, Reason: d.Reason}

	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.PaymentProof{}, fmt.Errorf("payment bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
}
