package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNormalizeDefaults(t *testing.T) {
	got := Ticket{Priority: "critical"}.Normalize()
	if got.Type != "enquiry" || got.Priority != PriorityNormal || got.Subject != "New ticket" || got.Status != StatusOpen {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	kept := Ticket{Type: "complaint", Priority: PriorityUrgent, Subject: "Leak"}.Normalize()
	if kept.Type != "complaint" || kept.Priority != PriorityUrgent || kept.Subject != "Leak" {
		t.Fatalf("explicit values must be kept: %+v", kept)
	}
}

func TestPostgresRepo_CreateOncePerCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("INSERT INTO tickets").
		WithArgs("b1", "c1", "booking", "high", "Book visit", "Wants Tuesday", "Sam", "+447700", "open").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("t1", now))
	mock.ExpectQuery("INSERT INTO tickets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	r := NewPostgresRepo(db)
	in := Ticket{BusinessID: "b1", CallID: "c1", Type: "booking", Priority: PriorityHigh, Subject: "Book visit",
		Description: "Wants Tuesday", CallerName: "Sam", CallerNumber: "+447700"}

	got, created, err := r.Create(context.Background(), in)
	if err != nil || !created || got.ID != "t1" {
		t.Fatalf("expected ticket created: %+v %v %v", got, created, err)
	}
	if _, created, err = r.Create(context.Background(), in); err != nil || created {
		t.Fatalf("expected conflict to skip: %v %v", created, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
