package fallback

import (
	"context"
	"strings"

	"caltrack/internal/tracker"
)

// Client produces deterministic nutrition estimates without any external
// call. It answers when the Gemini gateway errors or returns unparseable
// content, so nutrition lookups never hard-fail.
type Client struct {
	rules []rule
}

// rule maps a query keyword to a canned estimate. Rules are evaluated in
// order and the first match wins.
type rule struct {
	keyword  string
	estimate tracker.Estimate
}

// NewClient creates a new fallback client.
func NewClient() *Client {
	return &Client{
		rules: []rule{
			{"egg", tracker.Estimate{Calories: 140, Protein: 12, Carbs: 1, Fats: 10, ServingSize: "2 large eggs (estimated)"}},
			{"chicken", tracker.Estimate{Calories: 300, Protein: 35, Carbs: 0, Fats: 15, ServingSize: "1 breast (estimated)"}},
			{"apple", tracker.Estimate{Calories: 95, Protein: 0.5, Carbs: 25, Fats: 0.3, ServingSize: "1 medium (estimated)"}},
		},
	}
}

// EstimateNutrition returns the canned estimate for the first rule whose
// keyword appears in the query, or a generic default.
func (c *Client) EstimateNutrition(ctx context.Context, query string) (*tracker.Estimate, error) {
	q := strings.ToLower(query)
	for _, r := range c.rules {
		if strings.Contains(q, r.keyword) {
			est := r.estimate
			est.FoodName = query
			return &est, nil
		}
	}
	return &tracker.Estimate{
		FoodName:    query,
		Calories:    250,
		Protein:     12,
		Carbs:       30,
		Fats:        8,
		ServingSize: "1 estimated serving",
	}, nil
}

// AnalyzeFoodImage returns a fixed best-guess estimate. Without the vision
// model there is nothing to read from the image itself.
func (c *Client) AnalyzeFoodImage(ctx context.Context, imageData []byte) (*tracker.Estimate, error) {
	return &tracker.Estimate{
		FoodName:    "Vision unavailable - best guess",
		Calories:    250,
		Protein:     15,
		Carbs:       30,
		Fats:        10,
		ServingSize: "1 serving (estimated)",
	}, nil
}
