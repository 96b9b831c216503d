package repository

import (
	"errors"
	"regexp"
	"testing"

	"tclab_control/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSampleAppend(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewSampleSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta(insertSampleSQL)).
		WithArgs("r1", 3, 6.0, 31.5, 40.0, 47.25).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := models.Sample{Index: 3, T: 6, Measured: 31.5, Setpoint: 40, Output: 47.25}
	if err := repo.Append(ctx(t), "r1", s); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestSampleAppend_Duplicate(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewSampleSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta(insertSampleSQL)).
		WillReturnError(errors.New("UNIQUE constraint failed: run_samples.run_id, run_samples.idx"))

	if err := repo.Append(ctx(t), "r1", models.Sample{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSampleList_Ordered(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewSampleSQLite(db)

	rows := sqlmock.NewRows([]string{"idx", "t_s", "measured_c", "setpoint_c", "output_pct"}).
		AddRow(0, 0.0, 25.0, 40.0, 100.0).
		AddRow(1, 2.0, 25.4, 40.0, 100.0)

	mock.ExpectQuery(regexp.QuoteMeta(selectSamplesSQL)).WithArgs("r1").WillReturnRows(rows)

	got, err := repo.List(ctx(t), "r1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[1].Index != 1 || got[1].T != 2 || got[1].Measured != 25.4 {
		t.Fatalf("unexpected samples: %+v", got)
	}
}

func TestSampleList_Empty(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewSampleSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectSamplesSQL)).WithArgs("none").
		WillReturnRows(sqlmock.NewRows([]string{"idx", "t_s", "measured_c", "setpoint_c", "output_pct"}))

	got, err := repo.List(ctx(t), "none")
	if err != nil || len(got) != 0 {
		t.Fatalf("want empty, got %v %v", got, err)
	}
}
