package transcript

import (
	"fmt"
	"strings"
)

// InvalidURLError indicates the input is not a recognizable YouTube URL
// or video ID.
type InvalidURLError struct {
	Input string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("not a valid youtube url or video id: %q", e.Input)
}

// NotFoundError indicates the video has no caption track in any of the
// requested languages.
type NotFoundError struct {
	VideoID   string
	Languages []string
}

func (e *NotFoundError) Error() string {
	if len(e.Languages) == 0 {
		return fmt.Sprintf("no captions available for video %s", e.VideoID)
	}
	return fmt.Sprintf("no captions available for video %s in languages [%s]",
		e.VideoID, strings.Join(e.Languages, ", "))
}

// RateLimitError indicates YouTube refused the request with HTTP 429.
type RateLimitError struct {
	VideoID string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("youtube rate limited the caption request for video %s", e.VideoID)
}

// FetchError wraps transport and parse failures while talking to YouTube.
type FetchError struct {
	VideoID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch captions for video %s: %v", e.VideoID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
