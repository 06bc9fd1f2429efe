// internal/healer/summary.go
package healer

import (
	"sync"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
)

// SummaryStats is an immutable snapshot of the run so far.
type SummaryStats struct {
	Total            int                         `json:"total"`
	ByOutcome        map[schemas.HealOutcome]int `json:"by_outcome"`
	TotalCostUSD     float64                     `json:"total_cost_usd"`
	ScenarioAttempts map[string]int              `json:"scenario_attempts"`
}

// Summary accumulates per-run healing statistics. It is an explicit object
// passed to whoever needs it; there is no process-wide instance.
type Summary struct {
	mu        sync.Mutex
	byOutcome map[schemas.HealOutcome]int
	totalCost float64
	attempts  map[string]int
}

// NewSummary creates an empty accumulator.
func NewSummary() *Summary {
	return &Summary{
		byOutcome: make(map[schemas.HealOutcome]int),
		attempts:  make(map[string]int),
	}
}

// Record counts one finished heal attempt for a scenario.
func (s *Summary) Record(scenario string, result *schemas.HealResult) {
	if result == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOutcome[result.Outcome]++
	s.totalCost += result.CostUSD
	s.attempts[scenario]++
}

// AttemptCount returns how many heal attempts a scenario has consumed.
func (s *Summary) AttemptCount(scenario string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[scenario]
}

// Snapshot returns a copy of the accumulated statistics.
func (s *Summary) Snapshot() SummaryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOutcome := make(map[schemas.HealOutcome]int, len(s.byOutcome))
	total := 0
	for k, v := range s.byOutcome {
		byOutcome[k] = v
		total += v
	}
	attempts := make(map[string]int, len(s.attempts))
	for k, v := range s.attempts {
		attempts[k] = v
	}
	return SummaryStats{
		Total:            total,
		ByOutcome:        byOutcome,
		TotalCostUSD:     s.totalCost,
		ScenarioAttempts: attempts,
	}
}
