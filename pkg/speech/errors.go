package speech

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ConfigError indicates the transcriber could not be constructed:
// missing project id or an absent credentials file.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// UnsupportedFormatError indicates the audio file extension is not in
// the allow-list.
type UnsupportedFormatError struct {
	Format    string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q, supported formats: %s",
		e.Format, strings.Join(e.Supported, ", "))
}

// TooLargeError indicates the audio exceeds the configured size limit.
type TooLargeError struct {
	Size int64
	Max  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("audio file is %d bytes, limit is %d", e.Size, e.Max)
}

// APIError wraps a per-call failure, carrying the file and language for
// diagnostics.
type APIError struct {
	File     string
	Language string
	Err      error
}

func (e *APIError) Error() string {
	switch status.Code(e.Err) {
	case codes.PermissionDenied:
		return fmt.Sprintf("speech api rejected %s: permission denied, check the service account and quota: %v", e.File, e.Err)
	case codes.ResourceExhausted:
		return fmt.Sprintf("speech api rejected %s: quota exhausted: %v", e.File, e.Err)
	default:
		return fmt.Sprintf("speech api failed for %s (language %s): %v", e.File, e.Language, e.Err)
	}
}

func (e *APIError) Unwrap() error { return e.Err }
