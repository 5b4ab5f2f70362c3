package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// ProviderError is returned by executors when a provider responds with a
// failure. Permanent marks faults that retrying the same endpoint cannot fix
// (rejected credentials, unknown model); the dispatcher isolates the endpoint
// immediately instead of burning the transient retry budget on it.
//
// Message must never include API keys.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Permanent  bool
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Endpoint, e.Message)
}

// IsPermanent reports whether err carries a permanent provider fault.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// CircuitOpenError reports that an endpoint was skipped because its circuit
// is open. It is resolved inside the dispatcher and only surfaces wrapped in
// AllUnavailableError when every endpoint was in cooldown.
type CircuitOpenError struct {
	Endpoint string
	Until    time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Endpoint, e.Until.Format(time.RFC3339))
}

// AllUnavailableError is the terminal dispatch failure: no endpoint was
// selectable or every attempt failed.
type AllUnavailableError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *AllUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("all providers unavailable for %q after %d attempts: %v", e.Model, e.Attempts, e.Err)
	}
	return fmt.Sprintf("all providers unavailable for %q", e.Model)
}

func (e *AllUnavailableError) Unwrap() error {
	return e.Err
}
