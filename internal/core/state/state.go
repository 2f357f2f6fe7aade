package state

import "rtsview/internal/core/domain"

type Kind int

const (
	KindDisconnected Kind = iota
	KindConnecting
	KindConnected
	KindSubscribing
	KindSubscribed
	KindStopped
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDisconnected:
		return "disconnected"
	case KindConnecting:
		return "connecting"
	case KindConnected:
		return "connected"
	case KindSubscribing:
		return "subscribing"
	case KindSubscribed:
		return "subscribed"
	case KindStopped:
		return "stopped"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the internal lifecycle state. Subscribed carries a
// SubscriptionState, Error carries the StreamError.
type State struct {
	kind         Kind
	subscription *SubscriptionState
	err          *domain.StreamError
}

func Disconnected() State { return State{kind: KindDisconnected} }
func Connecting() State   { return State{kind: KindConnecting} }
func Connected() State    { return State{kind: KindConnected} }
func Subscribing() State  { return State{kind: KindSubscribing} }
func Stopped() State      { return State{kind: KindStopped} }

func Subscribed(s *SubscriptionState) State {
	return State{kind: KindSubscribed, subscription: s}
}

func Errored(err domain.StreamError) State {
	return State{kind: KindError, err: &err}
}

func (s State) Kind() Kind { return s.kind }

func (s State) String() string { return s.kind.String() }

// Subscription returns the payload of a Subscribed state.
func (s State) Subscription() (*SubscriptionState, bool) {
	return s.subscription, s.kind == KindSubscribed && s.subscription != nil
}

// Error returns the payload of an Error state.
func (s State) Error() (domain.StreamError, bool) {
	if s.kind != KindError || s.err == nil {
		return domain.StreamError{}, false
	}
	return *s.err, true
}

// Public maps the internal state onto what the UI observes. A subscription
// without any complete source is still loading.
func (s State) Public() domain.StreamState {
	switch s.kind {
	case KindSubscribed:
		sources := s.subscription.Sources()
		if len(sources) == 0 {
			return domain.LoadingState()
		}
		return domain.SubscribedStreamState(sources, s.subscription.ViewerCount())
	case KindStopped:
		return domain.StoppedState()
	case KindDisconnected:
		return domain.DisconnectedState()
	case KindError:
		err := *s.err
		return domain.ErrorStreamState(&err)
	default:
		return domain.LoadingState()
	}
}
