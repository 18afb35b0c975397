package dispatch

// Failure tags why a request did not succeed.
type Failure int

const (
	FailureNone Failure = iota
	FailureTimeout
	FailureNetwork
	FailureStatus
	FailureCancelled
	FailureInvalidURL
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network"
	case FailureStatus:
		return "status"
	case FailureCancelled:
		return "cancelled"
	case FailureInvalidURL:
		return "invalid-url"
	}
	return "unknown"
}

// Outcome is the result of exactly one request. Failed requests are
// Outcomes with Success=false, never errors.
type Outcome struct {
	Success       bool
	LatencyMs     float64
	ResponseBytes int64
	StatusCode    int
	Failure       Failure
}

// Observer is told about requests as they start and resolve. Calls arrive
// from many goroutines.
type Observer interface {
	RequestStarted()
	RequestDone(Outcome)
}
