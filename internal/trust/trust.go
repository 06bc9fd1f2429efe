// Package trust tracks how much autonomy the healing engine has earned.
// Levels are promoted on sustained success and demoted on clustered failure,
// so a run of bad heals pulls the system back to suggestion-only mode without
// operator intervention.
package trust

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// Level is an autonomy tier. Higher levels auto-apply more.
type Level int

const (
	// LevelShadow logs what it would have done and applies nothing.
	LevelShadow Level = iota
	// LevelSuggest surfaces heals for a human to apply.
	LevelSuggest
	// LevelAutoSafe auto-applies heals for non-destructive actions only.
	LevelAutoSafe
	// LevelAutoAll auto-applies every heal, with full logging.
	LevelAutoAll
	// LevelSilent auto-applies everything and logs at debug only.
	LevelSilent
)

func (l Level) String() string {
	switch l {
	case LevelShadow:
		return "L0_SHADOW"
	case LevelSuggest:
		return "L1_SUGGEST"
	case LevelAutoSafe:
		return "L2_AUTO_SAFE"
	case LevelAutoAll:
		return "L3_AUTO_ALL"
	case LevelSilent:
		return "L4_SILENT"
	default:
		return "UNKNOWN"
	}
}

// Stats is a point-in-time view of the manager's state.
type Stats struct {
	Level          Level  `json:"-"`
	LevelName      string `json:"level"`
	ConsecutiveOK  int    `json:"consecutive_successes"`
	RecentFailures int    `json:"recent_failures"`
	Promotions     int64  `json:"promotions"`
	Demotions      int64  `json:"demotions"`
}

// Manager holds the current trust level under a mutex. Promotion requires an
// unbroken run of successes; demotion requires the configured number of
// failures inside the sliding window. Refusals move neither counter.
type Manager struct {
	mu         sync.Mutex
	cfg        config.TrustConfig
	level      Level
	consecOK   int
	failureLog []time.Time
	promotions int64
	demotions  int64

	now    func() time.Time
	logger *zap.Logger
}

// NewManager starts at the configured initial level, clamped to the
// configured bounds.
func NewManager(cfg config.TrustConfig, logger *zap.Logger) *Manager {
	level := clamp(Level(cfg.InitialLevel), Level(cfg.MinLevel), Level(cfg.MaxLevel))
	return &Manager{
		cfg:    cfg,
		level:  level,
		now:    time.Now,
		logger: logger.Named("trust"),
	}
}

// Level returns the current trust level.
func (m *Manager) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// CanAutoApply reports whether a heal for action may be applied without a
// human in the loop at the current level.
func (m *Manager) CanAutoApply(action schemas.ActionType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.level {
	case LevelShadow, LevelSuggest:
		return false
	case LevelAutoSafe:
		return action.IsSafe()
	default:
		return true
	}
}

// RecordSuccess counts one confirmed heal. A long enough unbroken run
// promotes one level, up to the configured maximum.
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecOK++
	if m.consecOK < m.cfg.SuccessesToPromote {
		return
	}
	m.consecOK = 0
	if m.level >= Level(m.cfg.MaxLevel) {
		return
	}
	m.level++
	m.promotions++
	m.logger.Info("Trust level promoted", zap.Stringer("level", m.level))
}

// RecordFailure counts one failed heal. It breaks the success streak, and
// enough failures inside the window demote one level, down to the configured
// minimum. Demotion clears the window so one bad cluster costs one level.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecOK = 0
	now := m.now()
	m.failureLog = append(m.failureLog, now)
	m.trimWindowLocked(now)

	if len(m.failureLog) < m.cfg.FailuresToDemote {
		return
	}
	m.failureLog = m.failureLog[:0]
	if m.level <= Level(m.cfg.MinLevel) {
		return
	}
	m.level--
	m.demotions++
	m.logger.Warn("Trust level demoted", zap.Stringer("level", m.level))
}

// SetLevel pins the trust level directly, clamped to the configured bounds.
// Intended for operators resetting trust mid-run; both counters restart so
// the new level is judged on fresh evidence.
func (m *Manager) SetLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clamped := clamp(level, Level(m.cfg.MinLevel), Level(m.cfg.MaxLevel))
	if clamped == m.level {
		m.consecOK = 0
		m.failureLog = m.failureLog[:0]
		return
	}
	m.logger.Info("Trust level set",
		zap.Stringer("from", m.level),
		zap.Stringer("to", clamped))
	m.level = clamped
	m.consecOK = 0
	m.failureLog = m.failureLog[:0]
}

// RecordRefusal exists for symmetry with success and failure. A refusal is
// the policy working as intended and moves no counter.
func (m *Manager) RecordRefusal() {
	m.logger.Debug("Heal refused, trust unchanged")
}

// GetStats returns a snapshot of the current state.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimWindowLocked(m.now())
	return Stats{
		Level:          m.level,
		LevelName:      m.level.String(),
		ConsecutiveOK:  m.consecOK,
		RecentFailures: len(m.failureLog),
		Promotions:     m.promotions,
		Demotions:      m.demotions,
	}
}

// trimWindowLocked drops failures older than the window. Caller holds mu.
func (m *Manager) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.FailureWindow)
	i := 0
	for i < len(m.failureLog) && m.failureLog[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		m.failureLog = append(m.failureLog[:0], m.failureLog[i:]...)
	}
}

func clamp(v, lo, hi Level) Level {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
