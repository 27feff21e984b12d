package enrichment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Mosas2000/sprintfund/internal/utils"
)

// doJSON executes req, decodes a JSON body into result, and converts HTTP
// failures into the pipeline error taxonomy. A 429 becomes a RateLimitError
// carrying the server's Retry-After hint so the rate limiter can honor it.
func doJSON(client *http.Client, req *http.Request, endpoint string, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SprintFund/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response body: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &utils.RateLimitError{
			Endpoint:   endpoint,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s error (%d): %s", endpoint, resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", endpoint, err)
		}
	}
	return nil
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP-date
// form is rare on the APIs used here and degrades to no hint.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
