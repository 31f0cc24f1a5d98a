// Package strategy is the default collab.StrategySelector adapter: a
// static per-scenario pool of strategy codes, sampled uniformly without
// replacement unless a deterministic seed is supplied.
package strategy

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// PoolSelector draws strategy codes from a fixed per-scenario pool.
type PoolSelector struct {
	mu    sync.RWMutex
	pools map[string][]string
}

// DefaultPools is the strategy pool shipped with the orchestrator, one
// entry per recommended_scenario value.
func DefaultPools() map[string][]string {
	return map[string][]string{
		"SAFE": {
			"light_humor", "curious_question", "shared_interest",
			"light_compliment", "casual_followup",
		},
		"BALANCED": {
			"empathetic_ack", "light_humor", "curious_question",
			"reassurance", "shared_interest",
		},
		"RISKY": {
			"empathetic_ack", "boundary_setting", "reassurance",
			"slow_down", "direct_response",
		},
		"RECOVERY": {
			"apology", "empathetic_ack", "reassurance",
			"slow_down", "boundary_setting",
		},
		"NEGATIVE": {
			"boundary_setting", "de_escalation", "empathetic_ack",
			"slow_down", "direct_response",
		},
	}
}

// New creates a PoolSelector with the given per-scenario pools.
func New(pools map[string][]string) *PoolSelector {
	return &PoolSelector{pools: pools}
}

// Select draws count distinct strategy codes for scenario. A seed makes the
// draw reproducible; without one, selection is uniformly random without
// replacement.
func (p *PoolSelector) Select(scenario string, count int, seed *int64) ([]string, error) {
	p.mu.RLock()
	pool, ok := p.pools[scenario]
	p.mu.RUnlock()
	if !ok || len(pool) == 0 {
		return nil, fmt.Errorf("strategy: no pool configured for scenario %q", scenario)
	}
	if count > len(pool) {
		return nil, fmt.Errorf("strategy: requested %d strategies but pool for %q has only %d", count, scenario, len(pool))
	}

	shuffled := make([]string, len(pool))
	copy(shuffled, pool)

	var r *rand.Rand
	if seed != nil {
		r = rand.New(rand.NewPCG(uint64(*seed), uint64(*seed)>>32|1))
	} else {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:count], nil
}
