package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"classattend/internal/face"
	"classattend/internal/identity"
	"classattend/internal/session"
)

type key struct{ session, student string }

type fakeLedger struct {
	mu      sync.Mutex
	records map[key]Record
	err     error
}

func newFakeLedger() *fakeLedger { return &fakeLedger{records: map[key]Record{}} }

func (l *fakeLedger) UpsertPresent(_ context.Context, sessionID, uid string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records[key{sessionID, uid}] = Record{SessionID: sessionID, StudentUID: uid, Status: StatusPresent, MarkedAt: at}
	return nil
}

func (l *fakeLedger) GetRecord(_ context.Context, sessionID, uid string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[key{sessionID, uid}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *fakeLedger) SubjectCounts(context.Context, string) ([]SubjectCount, error) {
	return []SubjectCount{{Subject: "Networks", Total: 4, Attended: 3}, {Subject: "Compilers", Total: 0}}, nil
}

func (l *fakeLedger) Roster(_ context.Context, sessionID string) ([]RosterEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []RosterEntry
	for k, r := range l.records {
		if k.session == sessionID {
			out = append(out, RosterEntry{StudentUID: r.StudentUID, MarkedAt: r.MarkedAt})
		}
	}
	return out, nil
}

type fakeSessions map[string]session.Session

func (f fakeSessions) GetSession(_ context.Context, id string) (*session.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

type fakeIdentities map[string]identity.Identity

func (f fakeIdentities) GetIdentity(_ context.Context, uid string) (*identity.Identity, error) {
	id, ok := f[uid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &id, nil
}

func (f fakeIdentities) Candidates(context.Context, face.Descriptor) ([]face.Registered, error) {
	var out []face.Registered
	for _, uid := range []string{"stu-1", "stu-2"} {
		if id, ok := f[uid]; ok {
			out = append(out, face.Registered{Owner: id.UID, Descriptor: id.Descriptor})
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.events = append(p.events, evt)
	return p.err
}

type countingObserver map[string]int

func (o countingObserver) ObserveVerification(outcome string, _ float64) { o[outcome]++ }

// vec returns a 128-dim descriptor with the leading components set.
func vec(lead ...float32) face.Descriptor {
	d := make(face.Descriptor, face.DefaultDim)
	copy(d, lead)
	return d
}

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	pub      *recordingPublisher
	obs      countingObserver
	clock    time.Time
	sessions fakeSessions
}

func newFixture(t *testing.T, people fakeIdentities) *fixture {
	t.Helper()
	m, err := face.NewMatcher(face.DefaultDim, face.DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		ledger: newFakeLedger(),
		pub:    &recordingPublisher{},
		obs:    countingObserver{},
		sessions: fakeSessions{
			"sess-os": {ID: "sess-os", Subject: "Operating Systems", FacultyID: "FAC0001", Start: start, End: start.Add(time.Hour)},
		},
	}
	f.svc = NewService(f.ledger, f.sessions, people, people, m).
		WithPublisher(f.pub).
		WithObserver(f.obs).
		WithClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) at(h, m int) {
	f.clock = time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func classroom() fakeIdentities {
	return fakeIdentities{
		"stu-1": {UID: "stu-1", FullName: "Asha Rao", Role: identity.RoleStudent, StudentID: "123456", Descriptor: vec(0.1, 0.2)},
		"stu-2": {UID: "stu-2", FullName: "Ravi Iyer", Role: identity.RoleStudent, StudentID: "654321", Descriptor: vec(0.9, 0.9)},
	}
}

func TestVerify_MarksAndRemarks(t *testing.T) {
	f := newFixture(t, classroom())
	ctx := context.Background()

	f.at(9, 30)
	res, err := f.svc.Verify(ctx, VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.User.ID != "stu-1" || res.User.StudentID != "123456" || res.Distance != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	rec, _ := f.svc.Status(ctx, "sess-os", "stu-1")
	if rec.Status != StatusPresent || !rec.MarkedAt.Equal(f.clock) {
		t.Errorf("record after first mark = %+v", rec)
	}

	f.at(9, 45)
	if _, err := f.svc.Verify(ctx, VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"}); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if n := len(f.ledger.records); n != 1 {
		t.Errorf("ledger has %d records, want 1", n)
	}
	rec, _ = f.svc.Status(ctx, "sess-os", "stu-1")
	if want := time.Date(2025, 3, 10, 9, 45, 0, 0, time.UTC); !rec.MarkedAt.Equal(want) {
		t.Errorf("markedAt = %v, want %v", rec.MarkedAt, want)
	}

	if len(f.pub.events) != 2 || f.pub.events[0].Type != EventMarked || f.pub.events[0].Subject != "Operating Systems" {
		t.Errorf("published events = %+v", f.pub.events)
	}
	if f.obs[OutcomeMarked] != 2 {
		t.Errorf("observer = %v", f.obs)
	}
}

func TestVerify_OutsideWindow(t *testing.T) {
	f := newFixture(t, classroom())
	f.at(8, 59)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"})
	var outside *OutsideWindowError
	if !errors.As(err, &outside) {
		t.Fatalf("error = %v, want OutsideWindowError", err)
	}
	if !outside.Start.Equal(f.sessions["sess-os"].Start) || !outside.Now.Equal(f.clock) {
		t.Errorf("window error fields = %+v", outside)
	}
	if len(f.ledger.records) != 0 || len(f.pub.events) != 0 {
		t.Error("nothing may be written outside the window")
	}
	if f.obs[OutcomeOutsideWindow] != 1 {
		t.Errorf("observer = %v", f.obs)
	}
}

func TestVerify_WindowBoundsInclusive(t *testing.T) {
	f := newFixture(t, classroom())
	s := f.sessions["sess-os"]
	for _, now := range []time.Time{s.Start, s.End} {
		f.clock = now
		if _, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"}); err != nil {
			t.Errorf("Verify at %v: %v", now, err)
		}
	}
	f.clock = s.End.Add(time.Nanosecond)
	if _, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"}); err == nil {
		t.Error("Verify 1ns after end should fail")
	}
}

func TestVerify_NotRecognized(t *testing.T) {
	f := newFixture(t, fakeIdentities{
		"stu-1": {UID: "stu-1", FullName: "Asha Rao", Role: identity.RoleStudent, Descriptor: vec(0.8)},
	})
	f.at(9, 30)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(), SessionID: "sess-os"})
	var rejected *NotRecognizedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want NotRecognizedError", err)
	}
	if math.Abs(rejected.Distance-0.8) > 1e-6 || rejected.Threshold != face.DefaultThreshold {
		t.Errorf("rejection = %+v", rejected)
	}
	if len(f.ledger.records) != 0 {
		t.Error("rejected query must not write a record")
	}
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name    string
		people  fakeIdentities
		req     VerifyRequest
		wantErr error
		outcome string
	}{
		{"short descriptor", classroom(), VerifyRequest{Descriptor: face.Descriptor{1, 2, 3}, SessionID: "sess-os"}, ErrInvalidDescriptor, OutcomeInvalidRequest},
		{"nil descriptor", classroom(), VerifyRequest{SessionID: "sess-os"}, ErrInvalidDescriptor, OutcomeInvalidRequest},
		{"missing session id", classroom(), VerifyRequest{Descriptor: vec(0.1), SessionID: "  "}, ErrMissingSession, OutcomeInvalidRequest},
		{"unknown session", classroom(), VerifyRequest{Descriptor: vec(0.1), SessionID: "nope"}, ErrSessionNotFound, OutcomeSessionNotFound},
		{"nobody enrolled", fakeIdentities{}, VerifyRequest{Descriptor: vec(0.1), SessionID: "sess-os"}, ErrNoEnrolledUsers, OutcomeNoEnrolledUsers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.people)
			f.at(9, 30)
			_, err := f.svc.Verify(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if f.obs[tt.outcome] != 1 {
				t.Errorf("observer = %v, want one %s", f.obs, tt.outcome)
			}
		})
	}
}

func TestVerify_StorageAndPublishErrors(t *testing.T) {
	f := newFixture(t, classroom())
	f.at(9, 30)
	f.pub.err = errors.New("queue down")
	if _, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"}); err != nil {
		t.Fatalf("publish failure must not fail the request: %v", err)
	}

	dbErr := errors.New("disk full")
	f.ledger.err = dbErr
	_, err := f.svc.Verify(context.Background(), VerifyRequest{Descriptor: vec(0.1, 0.2), SessionID: "sess-os"})
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped storage error", err)
	}
	if f.obs[OutcomeError] != 1 {
		t.Errorf("observer = %v", f.obs)
	}
}

func TestIdentify(t *testing.T) {
	f := newFixture(t, classroom())
	f.at(23, 0)

	res, err := f.svc.Identify(context.Background(), vec(0.9, 0.9, 0.1))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.User.ID != "stu-2" || res.User.FullName != "Ravi Iyer" || math.Abs(res.Distance-0.1) > 1e-6 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(f.ledger.records) != 0 || len(f.pub.events) != 0 || len(f.obs) != 0 {
		t.Error("identify must not touch the ledger, the queue or the verification observer")
	}
}

func TestIdentify_Failures(t *testing.T) {
	far := fakeIdentities{"stu-1": {UID: "stu-1", FullName: "Asha Rao", Role: identity.RoleStudent, Descriptor: vec(0.8)}}
	tests := []struct {
		name     string
		people   fakeIdentities
		d        face.Descriptor
		wantErr  error
		rejected bool
	}{
		{"short descriptor", classroom(), face.Descriptor{1, 2}, ErrInvalidDescriptor, false},
		{"nil descriptor", classroom(), nil, ErrInvalidDescriptor, false},
		{"nobody enrolled", fakeIdentities{}, vec(0.1), ErrNoEnrolledUsers, false},
		{"too far", far, vec(), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.people)
			_, err := f.svc.Identify(context.Background(), tt.d)
			if tt.rejected {
				var rejected *NotRecognizedError
				if !errors.As(err, &rejected) || math.Abs(rejected.Distance-0.8) > 1e-6 {
					t.Errorf("error = %v, want NotRecognizedError at 0.8", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatus_DefaultsAbsent(t *testing.T) {
	f := newFixture(t, classroom())
	rec, err := f.svc.Status(context.Background(), "sess-os", "stu-2")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusAbsent || !rec.MarkedAt.IsZero() {
		t.Errorf("record = %+v, want absent", rec)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]SubjectCount{
		{Subject: "Networks", Total: 4, Attended: 3},
		{Subject: "Compilers", Total: 0, Attended: 0},
		{Subject: "Graphics", Total: 2, Attended: 5},
	})
	want := []Summary{
		{Subject: "Networks", TotalSessions: 4, LecturesAttended: 3, Absent: 1, AttendancePercent: 75},
		{Subject: "Compilers"},
		{Subject: "Graphics", TotalSessions: 2, LecturesAttended: 2, Absent: 0, AttendancePercent: 100},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRoster_UnknownSession(t *testing.T) {
	f := newFixture(t, classroom())
	if _, err := f.svc.Roster(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Roster error = %v, want ErrSessionNotFound", err)
	}
}
