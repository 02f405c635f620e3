package utils

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	if err := HealthCheck(context.Background(), db, time.Second); err != nil {
		t.Fatalf("expected ping ok, got %v", err)
	}
}

func TestPoolDefaults(t *testing.T) {
	p := PostgresPoolConfig{MaxOpenConns: 5, MaxIdleConns: 50}.withDefaults()
	if p.MaxIdleConns != 5 {
		t.Fatalf("idle conns must not exceed open conns, got %d", p.MaxIdleConns)
	}
	if p.PingTimeout <= 0 {
		t.Fatalf("expected ping timeout default")
	}
}

func TestRequireTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT to_regclass`).WithArgs("calls").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow("calls"))
	mock.ExpectQuery(`SELECT to_regclass`).WithArgs("minutes_usage").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
	mock.ExpectQuery(`SELECT to_regclass`).WithArgs("tickets").
		WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))

	err = RequireTables(context.Background(), db, "calls", "minutes_usage", "tickets")
	if err == nil || !strings.Contains(err.Error(), "minutes_usage, tickets") {
		t.Fatalf("expected both missing tables named, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
