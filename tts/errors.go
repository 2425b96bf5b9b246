package tts

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for the speech system.
var (
	// Request errors
	ErrNilWrapper = errors.New("wrapper is nil")
	ErrEmptyText  = errors.New("text is empty")
	ErrNoSink     = errors.New("no audio sink for playback")
	ErrSilenced   = errors.New("silenced")

	// Provider errors
	ErrNoProvider       = errors.New("no voice provider is active")
	ErrNoValidProvider  = errors.New("no valid TTS provider found")
	ErrProviderExists   = errors.New("provider already registered")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrNotSupported     = errors.New("operation not supported by provider")
	ErrNoNetwork        = errors.New("internet is not available - can't use MaryTTS right now")
	ErrInvalidAudioFile = errors.New("the generated audio file is invalid")
	ErrNoOutputFile     = errors.New("output file is empty")
	ErrUnexpectedOutput = errors.New("unexpected process output")
	ErrVoiceNotFound    = errors.New("voice not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRecoverableError reports whether retrying the request may succeed.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrNoProvider),
		errors.Is(err, ErrNoValidProvider),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrNilWrapper),
		errors.Is(err, ErrEmptyText):
		return false
	}
	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityWarning is for failures that don't end a request.
	SeverityWarning ErrorSeverity = iota
	// SeverityError is for failures that end a request.
	SeverityError
)

func (s ErrorSeverity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// TTSError carries the provider and request a failure belongs to.
type TTSError struct {
	Err       error         // The underlying error
	Provider  string        // Provider that generated the error
	Action    string        // Operation being performed
	UID       string        // Request uid, empty for global failures
	Severity  ErrorSeverity // Severity of the error
	Timestamp time.Time
	Context   map[string]interface{} // Additional context
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	if e.Err == nil {
		return "unknown TTS error"
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *TTSError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewTTSError creates a new error for a provider action.
func NewTTSError(err error, provider, action string) *TTSError {
	return &TTSError{
		Err:       err,
		Provider:  provider,
		Action:    action,
		Severity:  SeverityError,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WithSeverity sets the error severity.
func (e *TTSError) WithSeverity(severity ErrorSeverity) *TTSError {
	e.Severity = severity
	return e
}

// WithUID sets the request uid.
func (e *TTSError) WithUID(uid string) *TTSError {
	e.UID = uid
	return e
}

// WithContext adds context to the error.
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}
