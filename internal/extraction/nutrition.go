package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

const systemPrompt = `You are a nutritionist analysing a meal logged by a user.
Identify every food item, estimate its quantity and its nutritional values.
Reply ONLY with JSON in exactly this shape:
{"name": string, "icon": string, "foods": [{"name": string, "quantity": string, "calories": number, "proteins": number, "carbohydrates": number, "fats": number}]}
Rules:
- "name" names the meal after the time of day it was eaten (e.g. "Café da manhã", "Almoço", "Lanche da tarde", "Jantar").
- "icon" is a single emoji representing the meal.
- "quantity" is a human readable portion such as "2 fatias" or "150g".
- calories are kcal; proteins, carbohydrates and fats are grams; all numbers are >= 0.
- Write names in Brazilian Portuguese.
The meal was logged at %s.`

// fencedBlock matches a response wrapped in a markdown code fence.
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

var validate = validatorv10.New()

type foodPayload struct {
	Name          string   `json:"name" validate:"required"`
	Quantity      string   `json:"quantity" validate:"required"`
	Calories      *float64 `json:"calories" validate:"required,gte=0"`
	Proteins      *float64 `json:"proteins" validate:"required,gte=0"`
	Carbohydrates *float64 `json:"carbohydrates" validate:"required,gte=0"`
	Fats          *float64 `json:"fats" validate:"required,gte=0"`
}

type detailsPayload struct {
	Name  string        `json:"name" validate:"required"`
	Icon  string        `json:"icon" validate:"required"`
	Foods []foodPayload `json:"foods" validate:"required,min=1,dive"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractFromText derives meal details from a transcript. referenceTime is when
// the meal was logged and drives the meal-of-day name.
func (c *Client) ExtractFromText(ctx context.Context, text string, referenceTime time.Time) (meals.Details, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return meals.Details{}, fmt.Errorf("%w: empty meal description", ErrExtraction)
	}
	return c.complete(ctx, referenceTime, text)
}

// ExtractFromImage derives meal details from a picture reachable at imageURL.
func (c *Client) ExtractFromImage(ctx context.Context, imageURL string, referenceTime time.Time) (meals.Details, error) {
	if strings.TrimSpace(imageURL) == "" {
		return meals.Details{}, fmt.Errorf("%w: empty image reference", ErrExtraction)
	}
	return c.complete(ctx, referenceTime, []contentPart{
		{Type: "text", Text: "Analyse the meal in this picture."},
		{Type: "image_url", ImageURL: &imageRef{URL: imageURL, Detail: "low"}},
	})
}

func (c *Client) complete(ctx context.Context, referenceTime time.Time, userContent any) (meals.Details, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, referenceTime.UTC().Format(time.RFC3339))},
			{Role: "user", Content: userContent},
		},
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return meals.Details{}, err
	}
	if len(resp.Choices) == 0 {
		return meals.Details{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	details, err := ParseDetails(resp.Choices[0].Message.Content)
	if err != nil {
		c.log.Warn("rejected nutrition response", "error", err.Error())
		return meals.Details{}, err
	}
	return details, nil
}

// ParseDetails strips an optional code fence, decodes the nutrition JSON and
// validates it.
func ParseDetails(content string) (meals.Details, error) {
	raw := strings.TrimSpace(content)
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return meals.Details{}, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	var p detailsPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return meals.Details{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	p.Name = strings.TrimSpace(p.Name)
	p.Icon = strings.TrimSpace(p.Icon)
	for i := range p.Foods {
		p.Foods[i].Name = strings.TrimSpace(p.Foods[i].Name)
		p.Foods[i].Quantity = strings.TrimSpace(p.Foods[i].Quantity)
	}
	if err := validate.Struct(p); err != nil {
		return meals.Details{}, fmt.Errorf("%w: %w", ErrInvalidNutrition, err)
	}

	foods := make([]meals.Food, 0, len(p.Foods))
	for _, f := range p.Foods {
		foods = append(foods, meals.Food{
			Name:          f.Name,
			Quantity:      f.Quantity,
			Calories:      *f.Calories,
			Proteins:      *f.Proteins,
			Carbohydrates: *f.Carbohydrates,
			Fats:          *f.Fats,
		})
	}
	return meals.Details{Name: p.Name, Icon: p.Icon, Foods: foods}, nil
}
