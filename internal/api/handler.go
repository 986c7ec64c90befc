package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"

	"caltrack/internal/tracker"
)

// maxImageWidth bounds the pixel width of photos sent to the vision model.
const maxImageWidth = 800

// NutritionEstimator defines the interface for turning a food query or photo
// into a structured nutrition estimate.
type NutritionEstimator interface {
	EstimateNutrition(ctx context.Context, query string) (*tracker.Estimate, error)
	AnalyzeFoodImage(ctx context.Context, imageData []byte) (*tracker.Estimate, error)
}

// LogStore defines the interface for daily-log data operations.
type LogStore interface {
	LogMeal(ctx context.Context, userID string, date time.Time, entry tracker.MealEntry) (int, string, error)
	DeleteMeal(ctx context.Context, entryID string) (int, error)
	Day(ctx context.Context, userID string, date time.Time) (*tracker.DayView, error)
	LogDates(ctx context.Context, userID string) ([]time.Time, error)
}

// Handler handles HTTP requests.
type Handler struct {
	Estimator NutritionEstimator
	Fallback  NutritionEstimator
	LogStore  LogStore
}

// NewHandler creates a new Handler. Fallback must be a local estimator that
// cannot fail; it backs every estimation route when Estimator errors.
func NewHandler(estimator, fallback NutritionEstimator, logStore LogStore) *Handler {
	return &Handler{Estimator: estimator, Fallback: fallback, LogStore: logStore}
}

// Health reports that the service is up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Backend is running!"})
}

// Search estimates nutrition facts for a free-text food query. Gateway
// failures are absorbed: the response degrades to a deterministic local
// estimate instead of an error.
func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.String(http.StatusBadRequest, "Query required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	est, err := h.Estimator.EstimateNutrition(ctx, q)
	if err != nil {
		log.Printf("Nutrition estimate failed for %q, using fallback: %v", q, err)
		est, _ = h.Fallback.EstimateNutrition(ctx, q)
	}

	c.JSON(http.StatusOK, est)
}

type imageAnalysisRequest struct {
	Image string `json:"image"` // base64, optionally data-URI prefixed
}

// AnalyzeImage identifies the food in an uploaded photo and estimates its
// nutrition facts. Undecodable payloads and gateway failures both degrade to
// the fallback estimate.
func (h *Handler) AnalyzeImage(c *gin.Context) {
	var req imageAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.String(http.StatusBadRequest, "Image data required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	imageData, err := decodeImagePayload(req.Image)
	if err != nil {
		log.Printf("Failed to decode image payload, using fallback: %v", err)
		est, _ := h.Fallback.AnalyzeFoodImage(ctx, nil)
		c.JSON(http.StatusOK, est)
		return
	}

	imageData = normalizeImage(imageData)

	est, err := h.Estimator.AnalyzeFoodImage(ctx, imageData)
	if err != nil {
		log.Printf("Image analysis failed, using fallback: %v", err)
		est, _ = h.Fallback.AnalyzeFoodImage(ctx, imageData)
	}

	c.JSON(http.StatusOK, est)
}

// Streak returns the user's consecutive-day logging streak.
func (h *Handler) Streak(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.String(http.StatusBadRequest, "user_id required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dates, err := h.LogStore.LogDates(ctx, userID)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"streak": tracker.CurrentStreak(dates, time.Now())})
}

type logMealRequest struct {
	UserID   string  `json:"user_id"`
	Date     string  `json:"date"` // YYYY-MM-DD
	MealType string  `json:"meal_type"`
	FoodName string  `json:"food_name"`
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

// LogMeal records a meal for a user and date and returns the day's new
// calorie total along with the created entry's id.
func (h *Handler) LogMeal(c *gin.Context) {
	var req logMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err.Error()))
		return
	}
	if req.UserID == "" || req.FoodName == "" {
		c.String(http.StatusBadRequest, "user_id and food_name are required")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.String(http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return
	}
	if req.Calories < 0 || req.Protein < 0 || req.Carbs < 0 || req.Fats < 0 {
		c.String(http.StatusBadRequest, "calories and macros must not be negative")
		return
	}
	if req.MealType == "" {
		req.MealType = "Snack"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	newTotal, entryID, err := h.LogStore.LogMeal(ctx, req.UserID, date, tracker.MealEntry{
		MealType: req.MealType,
		FoodName: req.FoodName,
		Calories: req.Calories,
		Protein:  req.Protein,
		Carbs:    req.Carbs,
		Fats:     req.Fats,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "new_total": newTotal, "id": entryID})
}

// DeleteMeal deletes a meal entry and returns the parent day's recomputed
// total.
func (h *Handler) DeleteMeal(c *gin.Context) {
	entryID := c.Param("entry_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	newTotal, err := h.LogStore.DeleteMeal(ctx, entryID)
	if err != nil {
		if errors.Is(err, tracker.ErrEntryNotFound) {
			c.String(http.StatusNotFound, "Entry not found")
			return
		}
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "new_total": newTotal})
}

// DayView returns the total and all meals logged for a user on a date. A
// date with no log yields an empty view, not an error.
func (h *Handler) DayView(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.String(http.StatusBadRequest, "user_id required")
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.String(http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	day, err := h.LogStore.Day(ctx, userID, date)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	c.JSON(http.StatusOK, day)
}

// decodeImagePayload strips an optional data-URI prefix, removes embedded
// whitespace, repairs missing base64 padding, and decodes the payload.
// Clients wrap base64 at arbitrary line lengths, which StdEncoding rejects.
func decodeImagePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i != -1 {
			payload = payload[i+1:]
		}
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, payload)
	if m := len(payload) % 4; m != 0 {
		payload += strings.Repeat("=", 4-m)
	}

	imageData, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return imageData, nil
}

// normalizeImage re-encodes oversized photos as JPEG at maxImageWidth before
// they are sent to the vision model. Payloads that do not decode as an image
// are passed through untouched so the model can still try.
func normalizeImage(imageData []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return imageData
	}
	if img.Bounds().Dx() <= maxImageWidth {
		return imageData
	}

	img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return imageData
	}
	return buf.Bytes()
}
