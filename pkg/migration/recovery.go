package migration

import (
	"context"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// RecoveryState is one node of the per-operation recovery state machine:
//
//	Detected -> PlanBuilt -> {Retrying, WaitingOnLock, ManualPending,
//	                          Skipped, RolledBack} -> Resolved | Abandoned
type RecoveryState int

const (
	StateDetected RecoveryState = iota
	StatePlanBuilt
	StateRetrying
	StateWaitingOnLock
	StateManualPending
	StateSkipped
	StateRolledBack
	StateResolved
	StateAbandoned
)

func (s RecoveryState) String() string {
	switch s {
	case StateDetected:
		return "detected"
	case StatePlanBuilt:
		return "plan_built"
	case StateRetrying:
		return "retrying"
	case StateWaitingOnLock:
		return "waiting_on_lock"
	case StateManualPending:
		return "manual_pending"
	case StateSkipped:
		return "skipped"
	case StateRolledBack:
		return "rolled_back"
	case StateResolved:
		return "resolved"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// DefaultMaxRetries bounds automatic retries of one failed operation.
const DefaultMaxRetries = 3

// DefaultLockWait bounds how long a FileLocked recovery polls before the
// first retry.
const DefaultLockWait = 30 * time.Second

// LogEntry records one state transition of the recovery machine.
type LogEntry struct {
	Album     string
	Kind      ErrorKind
	Action    string
	Timestamp time.Time
}

// Outcome is the terminal verdict for one failed operation.
type Outcome struct {
	// State is StateResolved, StateSkipped, StateManualPending or
	// StateAbandoned. StateRolledBack is decided by the engine for
	// whole-migration aborts, never per operation.
	State RecoveryState

	// Message carries the structured kind+steps text for manual outcomes.
	Message string

	// Attempts counts how many retries were spent.
	Attempts int
}

// Manager builds and executes recovery plans for classified failures.
//
// The manager never mutates band metadata itself; it only re-invokes the
// failed operation handed to it and reports the terminal state. Every
// transition is appended to an in-memory log for the caller to inspect.
type Manager struct {
	maxRetries int
	lockWait   time.Duration

	// lockProbe reports whether the contended path is still held.
	// Defaults to the sidecar-lock probe; replaced in tests.
	lockProbe func(path string) bool

	log []LogEntry
}

// NewManager creates a recovery manager. Non-positive arguments fall back
// to the defaults.
func NewManager(maxRetries int, lockWait time.Duration) *Manager {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Manager{
		maxRetries: maxRetries,
		lockWait:   lockWait,
		lockProbe:  storage.IsLocked,
	}
}

// Log returns the recovery log accumulated so far.
func (m *Manager) Log() []LogEntry {
	return m.log
}

func (m *Manager) transition(album string, kind ErrorKind, state RecoveryState) {
	m.log = append(m.log, LogEntry{
		Album:     album,
		Kind:      kind,
		Action:    state.String(),
		Timestamp: time.Now().UTC(),
	})
	logger.Debug("recovery: %s -> %s (%s)", album, state, kind)
}

// Recover runs the recovery plan for one classified failure.
//
// attempt re-invokes the failed operation and is called up to maxRetries
// times for retryable kinds. path is the contended filesystem path, used to
// poll lock release for FileLocked failures.
func (m *Manager) Recover(ctx context.Context, album, path string, c Classification, attempt func() error) Outcome {
	m.transition(album, c.Kind, StateDetected)
	m.transition(album, c.Kind, StatePlanBuilt)

	switch c.Kind {
	case KindSourceNotFound:
		m.transition(album, c.Kind, StateSkipped)
		return Outcome{State: StateSkipped, Message: joinSteps(c)}

	case KindFileLocked:
		m.transition(album, c.Kind, StateWaitingOnLock)
		if !m.waitForRelease(ctx, path) {
			m.transition(album, c.Kind, StateManualPending)
			return Outcome{State: StateManualPending, Message: joinSteps(c)}
		}
		return m.retry(ctx, album, c, attempt)

	case KindUnknown:
		return m.retry(ctx, album, c, attempt)

	case KindDiskSpaceInsufficient:
		// Critical: nothing automatic can free space. Abandon so the
		// engine aborts and rolls the migration back.
		m.transition(album, c.Kind, StateAbandoned)
		return Outcome{State: StateAbandoned, Message: joinSteps(c)}

	default:
		// PermissionDenied, TargetExists and any manual-only kind halt
		// without mutating state; the caller re-invokes after the fix.
		m.transition(album, c.Kind, StateManualPending)
		return Outcome{State: StateManualPending, Message: joinSteps(c)}
	}
}

// retry re-invokes attempt up to maxRetries times with a short pause.
func (m *Manager) retry(ctx context.Context, album string, c Classification, attempt func() error) Outcome {
	for i := 1; i <= m.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		m.transition(album, c.Kind, StateRetrying)
		if err := attempt(); err == nil {
			m.transition(album, c.Kind, StateResolved)
			return Outcome{State: StateResolved, Attempts: i}
		}
		time.Sleep(time.Duration(i) * 100 * time.Millisecond)
	}
	m.transition(album, c.Kind, StateManualPending)
	return Outcome{State: StateManualPending, Message: joinSteps(c), Attempts: m.maxRetries}
}

// waitForRelease polls the lock probe until the path is free or the bounded
// wait elapses.
func (m *Manager) waitForRelease(ctx context.Context, path string) bool {
	deadline := time.Now().Add(m.lockWait)
	for {
		if !m.lockProbe(path) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func joinSteps(c Classification) string {
	msg := c.Kind.String() + " (" + c.Severity.String() + ")"
	for _, step := range c.SolutionSteps {
		msg += "; " + step
	}
	return msg
}
