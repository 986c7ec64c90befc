package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrEntryNotFound is returned when the referenced meal entry does not exist.
var ErrEntryNotFound = errors.New("meal entry not found")

// Store defines the interface for daily-log and meal-entry operations.
type Store interface {
	LogMeal(ctx context.Context, userID string, date time.Time, entry MealEntry) (int, string, error)
	DeleteMeal(ctx context.Context, entryID string) (int, error)
	Day(ctx context.Context, userID string, date time.Time) (*DayView, error)
	LogDates(ctx context.Context, userID string) ([]time.Time, error)
}

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create daily_logs table if not exists
	schema := `
	CREATE TABLE IF NOT EXISTS daily_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date DATE NOT NULL,
		total_calories INTEGER NOT NULL DEFAULT 0,
		UNIQUE (user_id, date)
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create daily_logs table: %w", err)
	}

	// Create meal_entries table if not exists
	schema = `
	CREATE TABLE IF NOT EXISTS meal_entries (
		id TEXT PRIMARY KEY,
		log_id TEXT NOT NULL REFERENCES daily_logs(id),
		meal_type TEXT NOT NULL DEFAULT 'Snack',
		food_name TEXT NOT NULL,
		calories INTEGER NOT NULL,
		protein DOUBLE PRECISION NOT NULL DEFAULT 0,
		carbs DOUBLE PRECISION NOT NULL DEFAULT 0,
		fats DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create meal_entries table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool. Call it at process exit.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// LogMeal records a meal for the given user and date and returns the day's
// new calorie total and the created entry's id. The whole sequence runs in
// one transaction, and the total is bumped with an atomic in-database
// increment, so concurrent requests for the same (user_id, date) cannot lose
// updates.
func (s *PostgresStore) LogMeal(ctx context.Context, userID string, date time.Time, entry MealEntry) (int, string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The no-op DO UPDATE makes RETURNING yield the existing row's id when
	// the day's log is already there.
	logID := uuid.NewString()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO daily_logs (id, user_id, date, total_calories) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (user_id, date) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id`,
		logID, userID, date).Scan(&logID)
	if err != nil {
		return 0, "", fmt.Errorf("failed to get or create daily log: %w", err)
	}

	entryID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meal_entries (id, log_id, meal_type, food_name, calories, protein, carbs, fats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entryID, logID, entry.MealType, entry.FoodName, entry.Calories, entry.Protein, entry.Carbs, entry.Fats)
	if err != nil {
		return 0, "", fmt.Errorf("failed to insert meal entry: %w", err)
	}

	var newTotal int
	err = tx.QueryRowContext(ctx,
		`UPDATE daily_logs SET total_calories = total_calories + $1 WHERE id = $2 RETURNING total_calories`,
		entry.Calories, logID).Scan(&newTotal)
	if err != nil {
		return 0, "", fmt.Errorf("failed to update daily total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return newTotal, entryID, nil
}

// DeleteMeal deletes a meal entry and returns the parent log's new total.
// The total is recomputed by summing the remaining entries rather than
// subtracting, which also repairs a total that drifted earlier.
func (s *PostgresStore) DeleteMeal(ctx context.Context, entryID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var logID string
	err = tx.QueryRowContext(ctx, `SELECT log_id FROM meal_entries WHERE id = $1`, entryID).Scan(&logID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrEntryNotFound
		}
		return 0, fmt.Errorf("failed to get meal entry: %w", err)
	}

	// Lock the parent log before touching its entries. Under READ COMMITTED
	// the recompute's SUM subquery keeps its statement snapshot even when the
	// UPDATE blocks on a concurrent writer, so without the lock a
	// just-committed entry could be missed in the new total.
	err = tx.QueryRowContext(ctx, `SELECT id FROM daily_logs WHERE id = $1 FOR UPDATE`, logID).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock daily log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM meal_entries WHERE id = $1`, entryID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete meal entry: %w", err)
	}

	var newTotal int
	err = tx.QueryRowContext(ctx,
		`UPDATE daily_logs
		 SET total_calories = (SELECT COALESCE(SUM(calories), 0) FROM meal_entries WHERE log_id = $1)
		 WHERE id = $1 RETURNING total_calories`,
		logID).Scan(&newTotal)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute daily total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return newTotal, nil
}

// Day returns the stored total and all meal entries for the given user and
// date, ordered by creation time. A date with no log yields an empty view,
// never an error.
func (s *PostgresStore) Day(ctx context.Context, userID string, date time.Time) (*DayView, error) {
	var dl DailyLog
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, date, total_calories FROM daily_logs WHERE user_id = $1 AND date = $2`,
		userID, date).Scan(&dl.ID, &dl.UserID, &dl.Date, &dl.TotalCalories)
	if err != nil {
		if err == sql.ErrNoRows {
			return &DayView{TotalCalories: 0, Meals: []MealEntry{}}, nil
		}
		return nil, fmt.Errorf("failed to get daily log: %w", err)
	}

	meals := []MealEntry{}
	err = s.db.SelectContext(ctx, &meals,
		`SELECT id, log_id, meal_type, food_name, calories, protein, carbs, fats, created_at
		 FROM meal_entries WHERE log_id = $1 ORDER BY created_at ASC`,
		dl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get meal entries: %w", err)
	}

	return &DayView{TotalCalories: dl.TotalCalories, Meals: meals}, nil
}

// LogDates returns the distinct dates on which the user has a daily log,
// most recent first.
func (s *PostgresStore) LogDates(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM daily_logs WHERE user_id = $1 ORDER BY date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get log dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan log date: %w", err)
		}
		dates = append(dates, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return dates, nil
}
