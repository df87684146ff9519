package llm

import (
	"fmt"
	"net/http"

	"github.com/Veraticus/pantry/internal/common"
)

// classifyHTTPError maps a provider status code onto the retry taxonomy.
// 429 and 5xx are transient; any other non-2xx is permanent.
func classifyHTTPError(provider string, status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s API error (status %d): %w", provider, status, common.ErrRateLimit)
	case status >= http.StatusInternalServerError:
		return &common.RetryableError{
			Err:       fmt.Errorf("%s API error (status %d): %s: %w", provider, status, truncate(body, 200), common.ErrOracleUnavailable),
			Retryable: true,
		}
	default:
		return &common.RetryableError{
			Err:       fmt.Errorf("%s API error (status %d): %s", provider, status, truncate(body, 200)),
			Retryable: false,
		}
	}
}

func transportError(provider string, err error) error {
	return &common.RetryableError{
		Err:       fmt.Errorf("%s request failed: %w: %w", provider, common.ErrOracleUnavailable, err),
		Retryable: true,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
