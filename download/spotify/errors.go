package spotify

import "fmt"

// RequestError is returned for every non-2xx provider response.
type RequestError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("Request failed with status code %d: %s", e.StatusCode, e.Body)
}

// RateLimitError represents an HTTP 429 from the provider.
type RateLimitError struct {
	RetryAfter int   // Seconds to wait before retrying
	Original   error // Underlying *RequestError
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("Spotify API rate limited: retry after %d seconds: %v", e.RetryAfter, e.Original)
	}
	return fmt.Sprintf("Spotify API rate limited: %v", e.Original)
}

func (e *RateLimitError) Unwrap() error {
	return e.Original
}

// SpotifyError represents a session or response-shape failure.
type SpotifyError struct {
	Message  string
	Original error
}

func (e *SpotifyError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("Spotify API error: %s: %v", e.Message, e.Original)
	}
	return fmt.Sprintf("Spotify API error: %s", e.Message)
}

func (e *SpotifyError) Unwrap() error {
	return e.Original
}
