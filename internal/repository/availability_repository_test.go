package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/schedule-api/internal/models"
)

func TestAvailabilityRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAvailabilityRepository(db)
	slot := models.Slot{Date: "2025-01-20", Time: "11:00"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM availability_slots")).
		WithArgs("t-1", slot.Date, slot.Time).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM availability_slots")).
		WithArgs("t-1", slot.Date, slot.Time).
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.Exists(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryInsertAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AvailabilitySlot{
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-20", Time: "11:00"},
	}
	require.NoError(t, repo.Insert(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availability_slots")).
		WithArgs("t-1", "2025-01-20", "11:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "11:00"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "slot_date", "slot_time", "created_at"}).
		AddRow("av-1", "t-1", "2025-01-20", "09:00", time.Now()).
		AddRow("av-2", "t-1", "2025-01-21", "10:00", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM availability_slots")).
		WithArgs("t-1", "2025-01-20", "2025-01-26").
		WillReturnRows(rows)

	entries, err := repo.ListRange(context.Background(), "t-1", "2025-01-20", "2025-01-26")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.Slot{Date: "2025-01-20", Time: "09:00"}, entries[0].Slot)
	require.NoError(t, mock.ExpectationsWereMet())
}
