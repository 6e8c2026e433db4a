// Package providers contains the HTTP clients for the upstream weather and
// geocoding APIs. Every client maps transport failures and response status
// codes to typed weather.UpstreamError values at this boundary; nothing
// above it looks at raw HTTP statuses.
package providers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-query-service/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles the HTTP client, resilience settings, and the
// provider name stamped onto every error.
type HTTPClientConfig struct {
	Provider string
	Client   *http.Client
	Backoff  BackoffConfig
}

var (
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingKey    = errors.New("api key is not configured")
)

func defaultHTTPConfig(provider string, client *http.Client) HTTPClientConfig {
	return HTTPClientConfig{
		Provider: provider,
		Client:   client,
		Backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequestWithResilience executes the HTTP request through the circuit
// breaker, retrying with exponential backoff. Only errors whose Retryable
// flag is set are retried; the flag, not the raw status code, is the policy.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, &weather.UpstreamError{
					Provider:  cfg.Provider,
					Code:      weather.UpstreamNetworkError,
					Retryable: true,
					Err:       execErr,
				}
			}
			if uerr := statusError(cfg.Provider, resp.StatusCode); uerr != nil {
				resp.Body.Close()
				return nil, uerr
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		// An open breaker means the provider is already known bad; retrying
		// here would just hammer the breaker.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.UpstreamError{
				Provider:  cfg.Provider,
				Code:      weather.UpstreamServerError,
				Retryable: false,
				Err:       err,
			}
		}

		var uerr *weather.UpstreamError
		if !errors.As(err, &uerr) || !uerr.Retryable || attempt >= cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if cfg.Backoff.MaxInterval > 0 && delay > cfg.Backoff.MaxInterval {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// statusError maps a response status to a typed error, nil for 2xx.
func statusError(provider string, status int) *weather.UpstreamError {
	e := &weather.UpstreamError{Provider: provider, Status: status}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = weather.UpstreamUnauthorized
	case status == http.StatusNotFound:
		e.Code = weather.UpstreamNotFound
	case status == http.StatusPaymentRequired:
		e.Code = weather.UpstreamQuota
	case status == http.StatusTooManyRequests:
		e.Code = weather.UpstreamRateLimited
		e.Retryable = true
	case status >= 500:
		e.Code = weather.UpstreamServerError
		e.Retryable = true
	default:
		e.Code = weather.UpstreamServerError
	}
	return e
}

// decodeError wraps a body-decoding failure. The provider answered 2xx with
// an unreadable payload, which is a server fault, not worth retrying.
func decodeError(provider string, err error) *weather.UpstreamError {
	return &weather.UpstreamError{
		Provider:  provider,
		Code:      weather.UpstreamServerError,
		Retryable: false,
		Err:       err,
	}
}
