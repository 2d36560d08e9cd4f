package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// HTTPConfig configures the REST clients of the exchange providers.
type HTTPConfig struct {
	BaseURL   string
	Timeout   time.Duration // per request
	Attempts  int           // total tries per request, including the first
	RetryWait time.Duration // initial backoff between tries
}

// newClient builds a resty client that retries transport errors, 429s and
// 5xx responses with backoff.
func newClient(cfg HTTPConfig) *resty.Client {
	retries := cfg.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(10*wait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "signal-engine/1.0")
}

// checkResponse turns a transport error or non-2xx status into an error.
// Client errors other than 429 are about the request, so they wrap ErrAsset.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200]
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode(), body)
		if code := resp.StatusCode(); code < 500 && code != http.StatusTooManyRequests {
			return assetErr(err)
		}
		return err
	}
	return nil
}

// parsePrice parses an exchange price or volume field exactly before
// converting to float64.
func parsePrice(field string, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d.InexactFloat64(), nil
}
