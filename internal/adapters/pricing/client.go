package pricing

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stayhold/internal/adapters/observability"
	"stayhold/internal/domain"
)

// Client talks to the pricing authority. Quoting and coupon validation are
// read-only from our side, so transient failures are retried with backoff.
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
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrCouponInvalid = errors.New("pricing: coupon invalid")
	ErrUnauthorized  = errors.New("pricing: unauthorized")
)

// QuotePricing asks for a price bound to exactly params. The authority
// echoes the params it priced; callers compare them against their live
// tuple before applying the response.
func (c *Client) QuotePricing(ctx context.Context, params domain.QuoteParams) (domain.PricingQuote, error) {
	var out domain.PricingQuote
	err := c.post(ctx, c.base+"/v1/quotes", "quotes", params, &out)
	if err != nil {
		return domain.PricingQuote{}, err
	}
	if out.Token == "" {
		return domain.PricingQuote{}, fmt.Errorf("pricing authority returned no token")
	}
	return out, nil
}

func (c *Client) ValidateCoupon(ctx context.Context, code string, params domain.QuoteParams) (domain.CouponDiscount, error) {
	body := struct {
		Code   string             `json:"code"`
		Params domain.QuoteParams `json:"params"`
	}{Code: code, Params: params}
	var out domain.CouponDiscount
	if err := c.post(ctx, c.base+"/v1/coupons/validate", "coupon_validate", body, &out); err != nil {
		if errors.Is(err, errRejected) {
			return domain.CouponDiscount{}, ErrCouponInvalid
		}
		return domain.CouponDiscount{}, err
	}
	return out, nil
}

// errRejected marks a definitive 404/422 from the authority.
var errRejected = errors.New("pricing: rejected")

// post performs a JSON POST with client-side rate limiting and bounded
// retries on 429/5xx, honoring Retry-After when provided.
func (c *Client) post(ctx context.Context, url, endpoint string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}
		observability.ObserveExternal("pricing", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound, http.StatusUnprocessableEntity:
			resp.Body.Close()
			return errRejected

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("pricing remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("pricing bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
