package orders

import (
	"fmt"
	"strings"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

// DefaultTransitions is the five-state table. It is also the syntax accepted by
// ParseTransitions.
const DefaultTransitions = "PENDING:PROCESSING|CONFIRMED|CANCELLED;PROCESSING:COMPLETED|CANCELLED;CONFIRMED:PROCESSING|CANCELLED"

// TransitionTable lists, per source status, the statuses an order may move to.
type TransitionTable map[domain.OrderStatus]map[domain.OrderStatus]bool

// ParseTransitions reads "FROM:TO|TO;FROM:TO". An empty string yields the default
// table. Edges out of terminal statuses are refused.
func ParseTransitions(s string) (TransitionTable, error) {
	if strings.TrimSpace(s) == "" {
		s = DefaultTransitions
	}

	table := TransitionTable{}
	for _, rule := range strings.Split(s, ";") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}

		from, targets, ok := strings.Cut(rule, ":")
		if !ok {
			return nil, fmt.Errorf("transition rule %q: expected FROM:TO|TO", rule)
		}

		source, err := domain.ParseOrderStatus(from)
		if err != nil {
			return nil, fmt.Errorf("transition rule %q: %w", rule, err)
		}
		if source.IsTerminal() {
			return nil, fmt.Errorf("transition rule %q: %s is terminal", rule, source)
		}

		for _, to := range strings.Split(targets, "|") {
			target, err := domain.ParseOrderStatus(to)
			if err != nil {
				return nil, fmt.Errorf("transition rule %q: %w", rule, err)
			}
			if table[source] == nil {
				table[source] = map[domain.OrderStatus]bool{}
			}
			table[source][target] = true
		}
	}

	return table, nil
}

func MustDefaultTransitions() TransitionTable {
	table, err := ParseTransitions(DefaultTransitions)
	if err != nil {
		panic(err)
	}
	return table
}

func (t TransitionTable) Allows(from, to domain.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	return t[from][to]
}

// Validate returns domain.ErrInvalidTransition naming the rejected target.
func (t TransitionTable) Validate(from, to domain.OrderStatus) error {
	if from.IsTerminal() {
		return domain.Errorf(domain.ErrInvalidTransition, "cannot move order to %s: %s is terminal", to, from)
	}
	if !t.Allows(from, to) {
		return domain.Errorf(domain.ErrInvalidTransition, "cannot move order to %s from %s", to, from)
	}
	return nil
}
