package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"txsentry/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestKnownAutomatedLowercasesAndCollects(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := newRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT address FROM automated_addresses WHERE address IN (?, ?)")).
		WithArgs("0xaaaa000000000000000000000000000000000001", "0xaaaa000000000000000000000000000000000002").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("0xaaaa000000000000000000000000000000000002"))

	known, err := repo.KnownAutomated(context.Background(), []string{
		"0xAAAA000000000000000000000000000000000001",
		"0xaaaa000000000000000000000000000000000002",
	})
	if err != nil {
		t.Fatalf("known automated: %v", err)
	}
	if len(known) != 1 || !known["0xaaaa000000000000000000000000000000000002"] {
		t.Fatalf("unexpected result %v", known)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestKnownAutomatedQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := newRepository(db)

	mock.ExpectQuery("SELECT address FROM automated_addresses").WillReturnError(errors.New("gone away"))
	if _, err := repo.KnownAutomated(context.Background(), []string{"0x1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsertLabelsRunsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := newRepository(db)
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO automated_addresses")
	prep.ExpectExec().WithArgs("0xaaaa000000000000000000000000000000000001", "mev_bot", "mev_heuristic", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("0xaaaa000000000000000000000000000000000002", "router", "seed", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.UpsertLabels(context.Background(), []domain.AutomatedLabel{
		{Address: "0xAAAA000000000000000000000000000000000001", Label: "mev_bot", Source: "mev_heuristic", UpdatedAt: ts},
		{Address: "0xaaaa000000000000000000000000000000000002", Label: "router", Source: "seed", UpdatedAt: ts},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertLabelsRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := newRepository(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO automated_addresses")
	prep.ExpectExec().WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	if err := repo.Upsert(context.Background(), domain.AutomatedLabel{Address: "0x1", Label: "mev_bot"}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
