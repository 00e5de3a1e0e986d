// Package bot is a rule-based opponent. Conditions are expr programs over
// Env; actions emit protocol commands for the relay.
package bot

import (
	"fmt"
	"log"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/world"
)

type Engine struct {
	eng   *world.Engine
	rules []*Rule
	log   *log.Logger

	// quietUntil holds the first tick a rule ("rule:<name>") or an
	// exclusive category ("cat:<category>") may fire again.
	quietUntil map[string]uint64
}

// NewEngine compiles every rule condition and sorts by priority. logger may
// be nil.
func NewEngine(eng *world.Engine, rules []*Rule, logger *log.Logger) (*Engine, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{
		eng:        eng,
		rules:      compiled,
		log:        logger,
		quietUntil: map[string]uint64{},
	}, nil
}

// Decide evaluates the rules for player against s and returns the commands
// to submit. Commands carry player as PlayerID; the relay stamps it anyway.
func (b *Engine) Decide(s *world.State, player string) []protocol.Command {
	env := Env{State: s, Player: player, eng: b.eng}
	if env.self() == nil || !env.Playing() {
		return nil
	}

	var out []protocol.Command
	blocked := map[string]bool{}
	for _, r := range b.rules {
		if blocked[r.Category] {
			continue
		}
		if s.Tick < b.quietUntil["rule:"+r.Name] {
			continue
		}
		if r.Exclusive && s.Tick < b.quietUntil["cat:"+r.Category] {
			continue
		}
		res, err := vm.Run(r.program, env)
		if err != nil {
			b.logf("rule %s: %v", r.Name, err)
			continue
		}
		if match, ok := res.(bool); !ok || !match {
			continue
		}
		cmds := r.Action(env)
		if len(cmds) == 0 {
			continue
		}
		b.logf("tick=%d rule=%s commands=%d", s.Tick, r.Name, len(cmds))
		out = append(out, cmds...)
		if r.CooldownTicks > 0 {
			until := s.Tick + uint64(r.CooldownTicks)
			b.quietUntil["rule:"+r.Name] = until
			if r.Exclusive {
				b.quietUntil["cat:"+r.Category] = until
			}
		}
		if r.Exclusive {
			blocked[r.Category] = true
		}
	}
	return out
}

func (b *Engine) logf(format string, args ...any) {
	if b.log != nil {
		b.log.Printf(format, args...)
	}
}

func compileRules(rules []*Rule) ([]*Rule, error) {
	for _, r := range rules {
		if r.Action == nil {
			return nil, fmt.Errorf("rule %q: no action", r.Name)
		}
		prog, err := expr.Compile(r.ConditionSrc, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		r.program = prog
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules, nil
}
