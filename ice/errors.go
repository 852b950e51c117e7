package ice

import "fmt"

// Kind classifies the errors returned from the public Agent API, so
// callers can switch on failure category instead of string-matching.
type Kind int

const (
	// KindInvalidArgument covers malformed ufrag/password/candidate input,
	// a RELAY transport policy configured without any server, and
	// end-of-candidates signaled more than once.
	KindInvalidArgument Kind = iota
	// KindNotReady covers Connect called before gathering completed, and
	// Send/Recv called before any component has a nominated pair.
	KindNotReady
	// KindNegotiationFailed covers a check list exhausted without a
	// nominated pair for every active component, or missing remote
	// credentials at Connect time.
	KindNegotiationFailed
	// KindConnectionLost covers transport teardown observed by a
	// blocked Recv/RecvFrom call.
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotReady:
		return "not ready"
	case KindNegotiationFailed:
		return "negotiation failed"
	case KindConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// Error is the error type returned from Agent's public methods.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ice: %s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel errors for conditions that don't need a formatted message.
var (
	ErrClosed              = newError(KindConnectionLost, "agent is closed")
	ErrNotGathered          = newError(KindNotReady, "gather_candidates has not completed")
	ErrNoRemoteCredentials  = newError(KindNegotiationFailed, "remote ufrag/password not set")
	ErrNoNominatedPair      = newError(KindNotReady, "no nominated pair for component")
	ErrEndOfCandidatesTwice = newError(KindInvalidArgument, "end-of-candidates already signaled")
	ErrNegotiationExhausted = newError(KindNegotiationFailed, "check list exhausted without a nominated pair for every component")
)
