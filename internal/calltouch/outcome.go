package calltouch

// TimeoutMessage is the Outcome error reported when the webhook does not
// answer within the configured timeout.
const TimeoutMessage = "Timeout"

// Outcome is the result of one forwarding attempt. Success means the HTTP
// exchange completed; it says nothing about how CallTouch judged the lead.
type Outcome struct {
	Success    bool
	StatusCode int
	// Payload is the decoded JSON response body, or the raw text when the
	// body is not JSON.
	Payload any
	Error   string
}

func delivered(status int, payload any) Outcome {
	return Outcome{Success: true, StatusCode: status, Payload: payload}
}

func failed(msg string) Outcome {
	return Outcome{Success: false, StatusCode: 0, Error: msg}
}

// TimedOut reports whether the attempt was aborted by the timeout.
func (o Outcome) TimedOut() bool {
	return !o.Success && o.Error == TimeoutMessage
}

// Result is a short label for logs and metrics.
func (o Outcome) Result() string {
	switch {
	case o.Success:
		return "delivered"
	case o.TimedOut():
		return "timeout"
	default:
		return "failed"
	}
}
