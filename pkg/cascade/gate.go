package cascade

import (
	"errors"
	"fmt"
	"time"

	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/normalizers"
)

var ErrGateNotSatisfied = errors.New("cascade confirmation is incomplete")

// Gate failure reasons.
const (
	ReasonImpactNotLoaded  = "impact_not_loaded"
	ReasonNotAcknowledged  = "consequences_not_acknowledged"
	ReasonNameNotConfirmed = "name_not_confirmed"
)

type GateError struct {
	Reason  string
	Missing []string
}

func (e *GateError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s %v", ErrGateNotSatisfied, e.Reason, e.Missing)
	}
	return fmt.Sprintf("%s: %s", ErrGateNotSatisfied, e.Reason)
}

func (e *GateError) Unwrap() error {
	return ErrGateNotSatisfied
}

// Session is the server-side confirmation state for one pending cascade.
type Session struct {
	ID            string              `json:"id"`
	BusinessID    string              `json:"business_id"`
	ActorID       string              `json:"actor_id"`
	Plan          *models.CascadePlan `json:"plan"`
	ImpactLoaded  bool                `json:"impact_loaded"`
	Acknowledged  map[string]bool     `json:"acknowledged"`
	NameConfirmed bool                `json:"name_confirmed"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Pending lists the consequences still awaiting acknowledgement.
func (s *Session) Pending() []string {
	if s.Plan == nil {
		return nil
	}
	var missing []string
	for _, c := range s.Plan.Consequences() {
		if !s.Acknowledged[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Check returns nil only when the impact was loaded, every consequence was
// acknowledged and the business name was typed back.
func (s *Session) Check() error {
	if !s.ImpactLoaded || s.Plan == nil {
		return &GateError{Reason: ReasonImpactNotLoaded}
	}
	if missing := s.Pending(); len(missing) > 0 {
		return &GateError{Reason: ReasonNotAcknowledged, Missing: missing}
	}
	if !s.NameConfirmed {
		return &GateError{Reason: ReasonNameNotConfirmed}
	}
	return nil
}

// NamesMatch compares ignoring case and whitespace runs. Accents must match.
func NamesMatch(typed, actual string) bool {
	t := normalizers.CollapseWhitespace(typed)
	return t != "" && t == normalizers.CollapseWhitespace(actual)
}

func knownConsequence(name string) bool {
	switch name {
	case models.ConsequenceProducts,
		models.ConsequenceOrders,
		models.ConsequenceCategories,
		models.ConsequenceFundsDeleted,
		models.ConsequenceFundsDisassociated,
		models.ConsequenceBusinessRecord:
		return true
	}
	return false
}
