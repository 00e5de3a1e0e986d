package bot

import (
	"github.com/expr-lang/expr/vm"

	"lockstep.rts/internal/protocol"
)

// ActionFunc turns a fired rule into commands for the next batch. The env's
// state is read-only.
type ActionFunc func(env Env) []protocol.Command

// Rule is a condition/action pair. Rules are evaluated by descending
// Priority; an Exclusive rule that fires blocks the rest of its Category for
// that decision.
type Rule struct {
	Name         string
	Priority     int
	Category     string
	Exclusive    bool
	ConditionSrc string
	// CooldownTicks keeps a rule quiet after it fired, so an order still in
	// flight to the relay is not issued twice.
	CooldownTicks int
	Action        ActionFunc

	program *vm.Program
}
