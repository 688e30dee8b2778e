package simulation

import (
	"time"

	"github.com/google/uuid"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
)

// Mode is how the staff user experiences the student account.
type Mode string

const (
	// ModeReadOnly impersonates a real student without mutating their data.
	ModeReadOnly Mode = "READ_ONLY"
	// ModeDummyStudent runs against a throwaway student account.
	ModeDummyStudent Mode = "DUMMY_STUDENT"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeReadOnly || m == ModeDummyStudent
}

// Status is the session lifecycle state. ACTIVE -> ENDED, terminal.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

// Counter names one of the per-session activity counters.
type Counter string

const (
	CounterModulesViewed Counter = "modules_viewed"
	CounterQuizzesViewed Counter = "quizzes_viewed"
	CounterAIChatsOpened Counter = "ai_chats_opened"
)

// Valid reports whether c is a known counter.
func (c Counter) Valid() bool {
	switch c {
	case CounterModulesViewed, CounterQuizzesViewed, CounterAIChatsOpened:
		return true
	default:
		return false
	}
}

// Session is one simulation run, retained for audit after it ends.
// EndedAt and DurationSeconds are set together, exactly once, on the
// transition to ENDED.
type Session struct {
	ID                    uuid.UUID
	OriginalUserID        uuid.UUID
	OriginalUserRole      auth.Role
	OriginalUserEmail     string
	SimulatedStudentID    uuid.UUID
	SimulatedStudentEmail string
	SimulatedStudentName  string
	TenantID              uuid.UUID
	TenantName            string
	Mode                  Mode
	Purpose               string
	Status                Status
	StartedAt             time.Time
	EndedAt               *time.Time
	DurationSeconds       *int64
	PagesVisited          []string
	ModulesViewed         int
	QuizzesViewed         int
	AIChatsOpened         int
}

// Active reports whether the session is still running.
func (s Session) Active() bool { return s.Status == StatusActive }
