//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"classattend/internal/attendance"
	"classattend/internal/face"
	"classattend/internal/identity"
	"classattend/internal/session"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	store, err := Open(ctx, dsn)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}
	if _, err := store.Migrate(ctx); err != nil {
		store.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return store, func() {
		store.Close()
		container.Terminate(ctx)
	}
}

func descriptor(seed float32) face.Descriptor {
	d := make(face.Descriptor, face.DefaultDim)
	for i := range d {
		d[i] = seed + float32(i)/1000
	}
	return d
}

func TestStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	student := identity.Identity{
		UID: "stu-1", Email: "asha@uni.edu", FullName: "Asha Rao", Role: identity.RoleStudent,
		StudentID: "123456", Descriptor: descriptor(0.1), EnrolledAt: now, CreatedAt: now,
	}
	teacher := identity.Identity{
		UID: "fac-1", Email: "mehta@uni.edu", FullName: "Dr. Mehta", Role: identity.RoleTeacher,
		FacultyID: "FAC0001", Descriptor: descriptor(0.5), EnrolledAt: now.Add(time.Minute), CreatedAt: now,
	}

	t.Run("Identities", func(t *testing.T) {
		for _, id := range []identity.Identity{student, teacher} {
			if err := store.CreateIdentity(ctx, id); err != nil {
				t.Fatalf("CreateIdentity(%s): %v", id.UID, err)
			}
		}
		if err := store.CreateIdentity(ctx, student); !errors.Is(err, identity.ErrAlreadyEnrolled) {
			t.Errorf("duplicate uid error = %v, want ErrAlreadyEnrolled", err)
		}
		clash := student
		clash.UID = "stu-2"
		if err := store.CreateIdentity(ctx, clash); !errors.Is(err, identity.ErrSecondaryIDTaken) {
			t.Errorf("duplicate student id error = %v, want ErrSecondaryIDTaken", err)
		}

		got, err := store.GetIdentity(ctx, "stu-1")
		if err != nil {
			t.Fatalf("GetIdentity: %v", err)
		}
		if len(got.Descriptor) != face.DefaultDim || got.FacultyID != "" || got.StudentID != "123456" {
			t.Errorf("unexpected identity %+v", got.Profile())
		}
		if _, err := store.GetIdentity(ctx, "ghost"); !errors.Is(err, identity.ErrNotFound) {
			t.Errorf("GetIdentity(ghost) = %v, want ErrNotFound", err)
		}

		regs, err := store.ListDescriptors(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(regs) != 2 || regs[0].Owner != "stu-1" || regs[1].Owner != "fac-1" {
			t.Errorf("descriptors not in enrollment order: %v, %v", regs[0].Owner, regs[1].Owner)
		}
	})

	sess := session.Session{
		ID: uuid.NewString(), Subject: "Operating Systems", FacultyID: "FAC0001",
		Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), CreatedAt: now,
	}
	other := session.Session{
		ID: uuid.NewString(), Subject: "Operating Systems", FacultyID: "FAC0001",
		Start: now.Add(24 * time.Hour), End: now.Add(25 * time.Hour), CreatedAt: now,
	}

	t.Run("Sessions", func(t *testing.T) {
		for _, s := range []session.Session{sess, other} {
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
		}
		got, err := store.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Start.Equal(sess.Start) || got.Start.Location() != time.UTC {
			t.Errorf("start = %v, want %v UTC", got.Start, sess.Start)
		}
		if _, err := store.GetSession(ctx, "not-a-uuid"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("malformed id error = %v, want ErrNotFound", err)
		}
		if _, err := store.GetSession(ctx, uuid.NewString()); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("unknown id error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ConcurrentUpsert", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				at := sess.Start.Add(time.Duration(i) * time.Second)
				if err := store.UpsertPresent(ctx, sess.ID, "stu-1", at); err != nil {
					t.Errorf("UpsertPresent: %v", err)
				}
			}(i)
		}
		wg.Wait()

		var n int
		if err := store.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attendance_records WHERE session_id = $1 AND student_uid = $2`, sess.ID, "stu-1").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("rows = %d, want 1", n)
		}
		rec, err := store.GetRecord(ctx, sess.ID, "stu-1")
		if err != nil || rec == nil || rec.Status != attendance.StatusPresent {
			t.Errorf("GetRecord = %+v, %v", rec, err)
		}
	})

	t.Run("SubjectCounts", func(t *testing.T) {
		counts, err := store.SubjectCounts(ctx, "stu-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(counts) != 1 || counts[0].Total != 2 || counts[0].Attended != 1 {
			t.Errorf("counts = %+v", counts)
		}
		roster, err := store.Roster(ctx, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(roster) != 1 || roster[0].FullName != "Asha Rao" {
			t.Errorf("roster = %+v", roster)
		}
	})

	t.Run("Events", func(t *testing.T) {
		evt := attendance.Event{
			ID: uuid.NewString(), Type: attendance.EventMarked, SessionID: sess.ID,
			Subject: sess.Subject, StudentUID: "stu-1", Distance: 0.12, OccurredAt: sess.Start,
		}
		for i := 0; i < 2; i++ {
			if err := store.AppendEvent(ctx, evt); err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}
		}
		events, err := store.ListEvents(ctx, sess.ID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].ID != evt.ID {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		applied, err := store.Migrate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(applied) != 0 {
			t.Errorf("re-run applied %v", applied)
		}
	})
}
