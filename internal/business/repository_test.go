package business

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var businessCols = []string{
	"id", "name", "business_type", "tier", "status", "owner_phone",
	"greeting", "agent_personality", "after_hours_message", "transfer_number", "restricted_info",
	"faq", "business_hours", "config",
}

func TestPostgresRepo_ResolveByNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cols := append(append([]string{}, businessCols...), "pid", "number", "label", "n_greeting", "n_personality")
	mock.ExpectQuery("FROM businesses b\\s+JOIN phone_numbers p").
		WithArgs("+441234").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"b1", "Acme", "plumbing", "growth", "active", "+447700",
			"Hello", "friendly", "", "+44999", "no prices",
			`[{"q":"Open Sunday?","a":"No"},{"q":"","a":"dropped"}]`,
			`{"monday":{"open":"09:00","close":"17:00"}}`,
			`{"services":"Boilers"}`,
			"p1", "+441234", "Main", "", "number persona",
		))

	r := NewPostgresRepo(db, nil)
	got, err := r.ResolveByNumber(context.Background(), "+441234")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "b1" || got.Tier != TierGrowth || got.OwnerPhone != "+447700" {
		t.Fatalf("unexpected business: %+v", got.Business)
	}
	if len(got.Agent.FAQ) != 1 || got.Agent.FAQ[0].Answer != "No" {
		t.Fatalf("unexpected faq: %+v", got.Agent.FAQ)
	}
	if got.Agent.Services != "Boilers" || got.Agent.TransferNumber != "+44999" {
		t.Fatalf("unexpected config: %+v", got.Agent)
	}
	if got.EffectivePersonality() != "number persona" {
		t.Fatalf("expected number personality, got %q", got.EffectivePersonality())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_ResolveByNumberNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM businesses b").WithArgs("+440000").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewPostgresRepo(db, nil).ResolveByNumber(context.Background(), "+440000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRepo_MalformedHoursMeansOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM businesses b").WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(businessCols).AddRow(
			"b1", "Acme", "", "starter", "active", "",
			"", "", "", "", "",
			"not json", `{"monday":"nine"}`, "",
		))

	b, err := NewPostgresRepo(db, nil).Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(b.Agent.Hours) != 0 || b.Agent.FAQ != nil {
		t.Fatalf("expected malformed columns dropped: %+v", b.Agent)
	}
}

func TestPostgresRepo_ApplyAgentConfig(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE businesses").
		WithArgs("b1", "Hi", "persona", "closed", "+44", "secret", `[]`, `{"services":"Cuts"}`, "ready_for_review").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepo(db, nil).ApplyAgentConfig(context.Background(), "b1", AgentConfig{
		Greeting:          "Hi",
		Personality:       "persona",
		AfterHoursMessage: "closed",
		TransferNumber:    "+44",
		RestrictedInfo:    "secret",
		Services:          "Cuts",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_KnowledgeBase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM knowledge_base").WithArgs("b1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"title", "content"}).AddRow("Prices", "From 50").AddRow("Area", "London"))

	docs, err := NewPostgresRepo(db, nil).KnowledgeBase(context.Background(), "b1", 0)
	if err != nil {
		t.Fatalf("kb: %v", err)
	}
	if len(docs) != 2 || docs[1].Content != "London" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}
