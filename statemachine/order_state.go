package statemachine

import (
	"fmt"
	"strings"

	"papichulo-api/models"
)

// Transition is one step of the suggested order lifecycle.
type Transition struct {
	From models.OrderStatus `json:"from"`
	To   models.OrderStatus `json:"to"`
}

// suggestedTransitions is the product lifecycle. Status updates only consult
// it when strict mode is enabled.
var suggestedTransitions = []Transition{
	{From: models.StatusNew, To: models.StatusAccepted},
	{From: models.StatusNew, To: models.StatusCancelled},
	{From: models.StatusAccepted, To: models.StatusPreparing},
	{From: models.StatusAccepted, To: models.StatusCancelled},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery},
	{From: models.StatusPreparing, To: models.StatusCancelled},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered},
}

var transitionSet = func() map[Transition]bool {
	m := make(map[Transition]bool, len(suggestedTransitions))
	for _, t := range suggestedTransitions {
		m[t] = true
	}
	return m
}()

// ValidTransitionsFrom returns all suggested next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	for _, t := range suggestedTransitions {
		if t.From == status {
			nexts = append(nexts, t.To)
		}
	}
	return nexts
}

// CanTransition reports whether from → to is part of the suggested lifecycle.
func CanTransition(from, to models.OrderStatus) error {
	if transitionSet[Transition{From: from, To: to}] {
		return nil
	}
	return fmt.Errorf("invalid transition: %s → %s; valid transitions from %s are: %s",
		from, to, from, describeValidFrom(from))
}

// TerminalStates are states with no outgoing suggested transition.
func TerminalStates() []models.OrderStatus {
	var out []models.OrderStatus
	for _, s := range models.OrderStatuses {
		if len(ValidTransitionsFrom(s)) == 0 {
			out = append(out, s)
		}
	}
	return out
}

// GetAllTransitions returns the full lifecycle for documentation
func GetAllTransitions() []Transition {
	out := make([]Transition, len(suggestedTransitions))
	copy(out, suggestedTransitions)
	return out
}

func describeValidFrom(status models.OrderStatus) string {
	nexts := ValidTransitionsFrom(status)
	if len(nexts) == 0 {
		return "none (terminal state)"
	}
	parts := make([]string, len(nexts))
	for i, s := range nexts {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
