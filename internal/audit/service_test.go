package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestService_AppendRequiresBusinessAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeSupportAccess}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{BusinessID: "b1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_LogOnboardingStarted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return at }

	by := Actor{UserID: "u1", Role: "support", IP: "203.0.113.7"}
	if err := svc.LogOnboardingStarted(context.Background(), "b1", by, "ob1", "CA9"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.Type != EventTypeOnboardingStarted || e.OnboardingID != "ob1" || e.CallSid != "CA9" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.ActorRole != "support" || e.IPAddress != "203.0.113.7" {
		t.Fatalf("expected actor captured, got %+v", e)
	}
	if e.ID == "" || !e.CreatedAt.Equal(at) {
		t.Fatalf("expected id and timestamp assigned, got %+v", e)
	}
}

func TestPostgresRepo_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs("e1", "b1", "support_access", "u1", "support", "203.0.113.7", "", "", "/v1/usage", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepo(db).Append(context.Background(), Event{
		ID: "e1", BusinessID: "b1", Type: EventTypeSupportAccess, ActorUserID: "u1", ActorRole: "support",
		IPAddress: "203.0.113.7", Message: "/v1/usage", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
