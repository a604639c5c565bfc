package attendance

import (
	"context"
	"time"
)

// Status is the attendance state of a student for one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Record is one row of the ledger. MarkedAt is zero for an absent record
// that was never written.
type Record struct {
	SessionID  string    `json:"sessionId"`
	StudentUID string    `json:"studentUid"`
	Status     Status    `json:"status"`
	MarkedAt   time.Time `json:"markedAt,omitempty"`
}

// SubjectCount is the raw per-subject tally a ledger produces for a student.
type SubjectCount struct {
	Subject  string
	Total    int
	Attended int
}

// Summary is one subject line of a student's attendance summary.
type Summary struct {
	Subject           string  `json:"subject"`
	TotalSessions     int     `json:"totalSessions"`
	LecturesAttended  int     `json:"lecturesAttended"`
	Absent            int     `json:"absent"`
	AttendancePercent float64 `json:"attendancePercent"`
}

// RosterEntry is a present student of a session.
type RosterEntry struct {
	StudentUID string    `json:"id"`
	FullName   string    `json:"fullName"`
	StudentID  string    `json:"studentId,omitempty"`
	MarkedAt   time.Time `json:"markedAt"`
}

// Ledger persists attendance records. UpsertPresent must be atomic per
// (sessionID, studentUID): concurrent calls leave exactly one row.
type Ledger interface {
	UpsertPresent(ctx context.Context, sessionID, studentUID string, at time.Time) error
	// GetRecord returns nil, nil when no row exists.
	GetRecord(ctx context.Context, sessionID, studentUID string) (*Record, error)
	// SubjectCounts tallies every subject that has at least one session.
	SubjectCounts(ctx context.Context, studentUID string) ([]SubjectCount, error)
	Roster(ctx context.Context, sessionID string) ([]RosterEntry, error)
}

// Summarize turns raw tallies into summary lines. A subject with no
// sessions reports 0 percent.
func Summarize(counts []SubjectCount) []Summary {
	out := make([]Summary, 0, len(counts))
	for _, c := range counts {
		attended := c.Attended
		if attended > c.Total {
			attended = c.Total
		}
		s := Summary{
			Subject:          c.Subject,
			TotalSessions:    c.Total,
			LecturesAttended: attended,
			Absent:           c.Total - attended,
		}
		if c.Total > 0 {
			s.AttendancePercent = float64(attended) / float64(c.Total) * 100
		}
		out = append(out, s)
	}
	return out
}
