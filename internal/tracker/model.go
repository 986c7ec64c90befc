package tracker

import "time"

// DailyLog is the per-user, per-date aggregate record. Exactly one row exists
// per (user_id, date); TotalCalories must equal the sum of the calories of
// its meal entries after every mutation.
type DailyLog struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Date          time.Time `json:"date" db:"date"`
	TotalCalories int       `json:"total_calories" db:"total_calories"`
}

// MealEntry is a single logged food item, child of one DailyLog.
type MealEntry struct {
	ID        string    `json:"id" db:"id"`
	LogID     string    `json:"log_id" db:"log_id"`
	MealType  string    `json:"meal_type" db:"meal_type"`
	FoodName  string    `json:"food_name" db:"food_name"`
	Calories  int       `json:"calories" db:"calories"`
	Protein   float64   `json:"protein" db:"protein"`
	Carbs     float64   `json:"carbs" db:"carbs"`
	Fats      float64   `json:"fats" db:"fats"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Estimate is the structured nutrition guess produced for a food query or
// photo. It is transient: the client decides whether to log it as a MealEntry.
type Estimate struct {
	FoodName    string  `json:"food_name"`
	Calories    int     `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fats        float64 `json:"fats"`
	ServingSize string  `json:"serving_size"`
}

// DayView is everything the client needs to render a single day.
type DayView struct {
	TotalCalories int         `json:"total_calories"`
	Meals         []MealEntry `json:"meals"`
}
