package checkout

import (
	"fmt"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cart"
)

// Phase is where a session is in the order placement workflow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseCommitting Phase = "committing"
	PhaseCommitted  Phase = "committed"
	PhaseFailed     Phase = "failed"
)

var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseValidating},
	PhaseValidating: {PhaseCommitting, PhaseIdle},
	PhaseCommitting: {PhaseCommitted, PhaseFailed},
	PhaseCommitted:  {PhaseValidating, PhaseIdle},
	PhaseFailed:     {PhaseValidating, PhaseIdle},
}

func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// State is everything one shopping session carries between requests: the
// cart, the accepted delivery details and the payment choice. It is loaded
// per request from a cache keyed by SessionID and handed to each handler
// explicitly; nothing here is global.
type State struct {
	SessionID   string     `json:"session_id"`
	Cart        cart.Cart  `json:"cart"`
	Info        *Info      `json:"checkout,omitempty"`
	Payment     *Selection `json:"payment,omitempty"`
	Phase       Phase      `json:"phase"`
	LastOrderID int64      `json:"last_order_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func NewState(sessionID string) *State {
	return &State{SessionID: sessionID, Phase: PhaseIdle}
}

// SetCheckout stores freshly validated delivery details. Any earlier payment
// choice was made against the old total, so it is dropped.
func (s *State) SetCheckout(info *Info) {
	s.Info = info
	s.Payment = nil
}

func (s *State) SetPayment(sel *Selection) {
	s.Payment = sel
}

// DiscardCheckout forgets delivery details and payment but keeps the cart.
func (s *State) DiscardCheckout() {
	s.Info = nil
	s.Payment = nil
}

func (s *State) advance(next Phase) error {
	if s.Phase == "" {
		s.Phase = PhaseIdle
	}
	if !s.Phase.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalPhase, s.Phase, next)
	}
	s.Phase = next
	return nil
}
