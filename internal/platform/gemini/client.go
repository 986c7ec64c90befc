package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"caltrack/internal/tracker"
)

// Client is a client for the Gemini API.
type Client struct {
	model *genai.GenerativeModel
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{model: client.GenerativeModel("gemini-2.5-flash")}, nil
}

const estimateJSONShape = `{
    "food_name": "Display Name",
    "calories": 0,
    "protein": 0,
    "carbs": 0,
    "fats": 0,
    "serving_size": "e.g. 1 medium apple"
}`

// EstimateNutrition estimates nutrition facts for a free-text food query.
func (c *Client) EstimateNutrition(ctx context.Context, query string) (*tracker.Estimate, error) {
	promptText := fmt.Sprintf("You are a nutritionist API. Return ONLY valid JSON, no other text.\nEstimate the nutrition for: %q.\n\nReturn this exact format:\n%s\n\nIf specific quantity isn't given, assume a standard serving.", query, estimateJSONShape)

	resp, err := c.model.GenerateContent(ctx, genai.Text(promptText))
	if err != nil {
		return nil, err
	}

	return estimateFromResponse(resp)
}

// AnalyzeFoodImage identifies the food in an image and estimates its
// nutrition facts.
func (c *Client) AnalyzeFoodImage(ctx context.Context, imageData []byte) (*tracker.Estimate, error) {
	promptText := fmt.Sprintf("You are a nutritionist. Identify the food in this image.\nFocus on basic whole foods (fruits, vegetables, eggs, meat, fish) or common dishes.\nReturn ONLY valid JSON with this exact format:\n%s\nIf unsure, make a best guess based on appearance.", estimateJSONShape)

	prompt := []genai.Part{
		genai.ImageData("jpeg", imageData),
		genai.Text(promptText),
	}

	resp, err := c.model.GenerateContent(ctx, prompt...)
	if err != nil {
		return nil, err
	}

	return estimateFromResponse(resp)
}

func estimateFromResponse(resp *genai.GenerateContentResponse) (*tracker.Estimate, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response format from Gemini")
	}

	return parseEstimate(string(text))
}

// parseEstimate extracts the JSON object from the model output, which might
// be wrapped in markdown fencing or other prose, and unmarshals it.
func parseEstimate(raw string) (*tracker.Estimate, error) {
	startIndex := strings.Index(raw, "{")
	endIndex := strings.LastIndex(raw, "}")

	if startIndex == -1 || endIndex == -1 || startIndex > endIndex {
		return nil, fmt.Errorf("could not find JSON object in response: %s", raw)
	}

	cleanJSON := raw[startIndex : endIndex+1]

	var est tracker.Estimate
	if err := json.Unmarshal([]byte(cleanJSON), &est); err != nil {
		return nil, fmt.Errorf("failed to unmarshal estimate JSON: %w. Raw response: %s", err, cleanJSON)
	}

	return &est, nil
}
