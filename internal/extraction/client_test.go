package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/"}, logger.Nop())
	require.NoError(t, err)
	return c
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
	})
	return string(b)
}

const breakfastJSON = `{"name":"Café da manhã","icon":"🍞","foods":[{"name":"Pão","quantity":"2 fatias","calories":100,"proteins":10,"carbohydrates":15,"fats":2}]}`

func TestNewClient_RequiresKeyAndLogger(t *testing.T) {
	_, err := NewClient(Config{}, logger.Nop())
	assert.Error(t, err)
	_, err = NewClient(Config{APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "pt", r.FormValue("language"))
		assert.Equal(t, "text", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "audio.m4a", hdr.Filename)
		assert.Equal(t, "raw-audio", string(data))

		_, _ = io.WriteString(w, "ovos e pão\n")
	})

	text, err := c.Transcribe(context.Background(), []byte("raw-audio"))
	require.NoError(t, err)
	assert.Equal(t, "ovos e pão", text)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected")
	})
	_, err := c.Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtractFromText_StripsFence(t *testing.T) {
	ref := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, "2024-01-01T08:00:00Z")
		assert.Equal(t, "ovos e pão", req.Messages[1].Content)

		_, _ = io.WriteString(w, chatReply("```json\n"+breakfastJSON+"\n```"))
	})

	d, err := c.ExtractFromText(context.Background(), "ovos e pão", ref)
	require.NoError(t, err)
	assert.Equal(t, meals.Details{
		Name: "Café da manhã",
		Icon: "🍞",
		Foods: []meals.Food{
			{Name: "Pão", Quantity: "2 fatias", Calories: 100, Proteins: 10, Carbohydrates: 15, Fats: 2},
		},
	}, d)
}

func TestExtractFromImage_SendsImageURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"image_url":{"url":"https://bucket/meal.jpeg"`)
		_, _ = io.WriteString(w, chatReply(breakfastJSON))
	})

	d, err := c.ExtractFromImage(context.Background(), "https://bucket/meal.jpeg", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "🍞", d.Icon)
}

func TestExtract_ErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    error
		notWant error
	}{
		{name: "server error", status: 502, body: "bad gateway", want: ErrUnavailable},
		{name: "rate limited", status: 429, body: "slow down", want: ErrUnavailable},
		{name: "bad request", status: 400, body: "nope", want: ErrExtraction, notWant: ErrUnavailable},
		{name: "not json", status: 200, body: "<html>", want: ErrMalformedResponse},
		{name: "no choices", status: 200, body: `{"choices":[]}`, want: ErrMalformedResponse},
		{name: "content not json", status: 200, body: chatReply("I think it was toast"), want: ErrMalformedResponse},
		{name: "negative calories", status: 200, body: chatReply(strings.Replace(breakfastJSON, `"calories":100`, `"calories":-1`, 1)), want: ErrInvalidNutrition},
		{name: "missing quantity", status: 200, body: chatReply(strings.Replace(breakfastJSON, `"2 fatias"`, `"  "`, 1)), want: ErrInvalidNutrition},
		{name: "no foods", status: 200, body: chatReply(`{"name":"Jantar","icon":"🍝","foods":[]}`), want: ErrInvalidNutrition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.ExtractFromText(context.Background(), "arroz e feijão", time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrExtraction)
			if tc.notWant != nil {
				assert.False(t, errors.Is(err, tc.notWant), "unexpected %v", tc.notWant)
			}
		})
	}
}

func TestExtract_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ExtractFromText(ctx, "arroz", time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseDetails_MissingNumericField(t *testing.T) {
	_, err := ParseDetails(`{"name":"Almoço","icon":"🍛","foods":[{"name":"Arroz","quantity":"1 xícara","calories":200,"proteins":4,"carbohydrates":45}]}`)
	assert.ErrorIs(t, err, ErrInvalidNutrition)
}

func TestParseDetails_ZeroValuesAllowed(t *testing.T) {
	d, err := ParseDetails(`{"name":"Lanche","icon":"💧","foods":[{"name":"Água","quantity":"1 copo","calories":0,"proteins":0,"carbohydrates":0,"fats":0}]}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Foods[0].Calories)
}
