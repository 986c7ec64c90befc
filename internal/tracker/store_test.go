package tracker

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestLogMeal(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO daily_logs")).
		WithArgs(sqlmock.AnyArg(), "user-1", date).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("log-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO meal_entries")).
		WithArgs(sqlmock.AnyArg(), "log-1", "Breakfast", "Oatmeal", 150, 5.0, 27.0, 3.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE daily_logs SET total_calories = total_calories + $1")).
		WithArgs(150, "log-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_calories"}).AddRow(470))
	mock.ExpectCommit()

	newTotal, entryID, err := store.LogMeal(context.Background(), "user-1", date, MealEntry{
		MealType: "Breakfast",
		FoodName: "Oatmeal",
		Calories: 150,
		Protein:  5,
		Carbs:    27,
		Fats:     3,
	})
	assert.NoError(t, err)
	assert.Equal(t, 470, newTotal)
	assert.NotEmpty(t, entryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogMeal_InsertFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO daily_logs")).
		WithArgs(sqlmock.AnyArg(), "user-1", date).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("log-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO meal_entries")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, _, err := store.LogMeal(context.Background(), "user-1", date, MealEntry{FoodName: "Toast", Calories: 80})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMeal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_id FROM meal_entries WHERE id = $1")).
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"log_id"}).AddRow("log-1"))
	// The parent row must be locked before the delete so the recompute sums
	// a post-lock snapshot of the entries.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM daily_logs WHERE id = $1 FOR UPDATE")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("log-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM meal_entries WHERE id = $1")).
		WithArgs("entry-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SET total_calories = (SELECT COALESCE(SUM(calories), 0)")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_calories"}).AddRow(320))
	mock.ExpectCommit()

	newTotal, err := store.DeleteMeal(context.Background(), "entry-1")
	assert.NoError(t, err)
	assert.Equal(t, 320, newTotal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMeal_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT log_id FROM meal_entries WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"log_id"}))
	mock.ExpectRollback()

	_, err := store.DeleteMeal(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	// No DELETE or UPDATE was expected: a missing entry causes no mutation.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDay_NoLog(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, date, total_calories FROM daily_logs")).
		WithArgs("user-1", date).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "date", "total_calories"}))

	day, err := store.Day(context.Background(), "user-1", date)
	assert.NoError(t, err)
	assert.Equal(t, 0, day.TotalCalories)
	assert.Empty(t, day.Meals)
	assert.NotNil(t, day.Meals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDay_WithMeals(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	noon := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, date, total_calories FROM daily_logs")).
		WithArgs("user-1", date).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "date", "total_calories"}).
			AddRow("log-1", "user-1", date, 650))
	mock.ExpectQuery(regexp.QuoteMeta("FROM meal_entries WHERE log_id = $1 ORDER BY created_at ASC")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "log_id", "meal_type", "food_name", "calories", "protein", "carbs", "fats", "created_at"}).
			AddRow("entry-1", "log-1", "Breakfast", "Oatmeal", 150, 5.0, 27.0, 3.0, morning).
			AddRow("entry-2", "log-1", "Lunch", "Chicken salad", 500, 35.0, 10.0, 20.0, noon))

	day, err := store.Day(context.Background(), "user-1", date)
	assert.NoError(t, err)
	assert.Equal(t, 650, day.TotalCalories)
	require.Len(t, day.Meals, 2)
	assert.Equal(t, "Oatmeal", day.Meals[0].FoodName)
	assert.Equal(t, "Chicken salad", day.Meals[1].FoodName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogDates(t *testing.T) {
	store, mock := newMockStore(t)
	d1 := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT date FROM daily_logs WHERE user_id = $1 ORDER BY date DESC")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"date"}).AddRow(d1).AddRow(d2))

	dates, err := store.LogDates(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, []time.Time{d1, d2}, dates)
	assert.NoError(t, mock.ExpectationsWereMet())
}
