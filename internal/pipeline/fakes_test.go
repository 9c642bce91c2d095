package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

// fakeRepo is an in-memory Repository with the same version guard as the store.
type fakeRepo struct {
	mu      sync.Mutex
	meals   map[string]meals.Meal
	creates []meals.Meal
	updates []meals.Meal
	calls   *[]string

	createErr error

	// updateErrs[i] is returned by the i-th Update call (0-based) when non-nil.
	updateErrs map[int]error
	updateN    int
}

func newFakeRepo(seed ...meals.Meal) *fakeRepo {
	r := &fakeRepo{meals: map[string]meals.Meal{}, updateErrs: map[int]error{}}
	for _, m := range seed {
		r.meals[m.ID] = m
	}
	return r
}

func (r *fakeRepo) record(call string) {
	if r.calls != nil {
		*r.calls = append(*r.calls, call)
	}
}

func (r *fakeRepo) Create(ctx context.Context, m meals.Meal) (meals.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("create")
	if r.createErr != nil {
		return meals.Meal{}, r.createErr
	}
	m.Version = 1
	r.meals[m.ID] = m
	r.creates = append(r.creates, m)
	return m, nil
}

func (r *fakeRepo) GetByFileKey(ctx context.Context, fileKey string) (meals.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.meals {
		if m.InputFileKey == fileKey {
			return m, nil
		}
	}
	return meals.Meal{}, meals.ErrNotFound
}

func (r *fakeRepo) GetByIDAndUser(ctx context.Context, id, userID string) (meals.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[id]
	if !ok || m.UserID != userID {
		return meals.Meal{}, meals.ErrNotFound
	}
	return m, nil
}

func (r *fakeRepo) ListByUserAndDay(ctx context.Context, userID, date string, status meals.Status) ([]meals.Meal, error) {
	start, end, err := meals.DayWindow(date)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []meals.Meal
	for _, m := range r.meals {
		if m.UserID != userID || m.Status != status {
			continue
		}
		if m.CreatedAt.Before(start) || m.CreatedAt.After(end) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRepo) Update(ctx context.Context, m meals.Meal) (meals.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.updateN
	r.updateN++
	if err := r.updateErrs[n]; err != nil {
		return meals.Meal{}, err
	}
	stored, ok := r.meals[m.ID]
	if !ok || stored.Version != m.Version {
		return meals.Meal{}, meals.ErrVersionConflict
	}
	m.Version++
	r.meals[m.ID] = m
	r.updates = append(r.updates, m)
	return m, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meals[id]
	if !ok || m.UserID != userID {
		return meals.ErrNotFound
	}
	delete(r.meals, id)
	return nil
}

func (r *fakeRepo) get(id string) meals.Meal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meals[id]
}

type fakeFiles struct {
	audio      []byte
	imageURL   string
	err        error
	fetchCalls int
	urlCalls   int
}

func (f *fakeFiles) FetchBytes(ctx context.Context, key string) ([]byte, error) {
	f.fetchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeFiles) ImageURL(ctx context.Context, key string) (string, error) {
	f.urlCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.imageURL, nil
}

type fakeExtractor struct {
	transcript    string
	details       meals.Details
	transcribeErr error
	extractErr    error

	// block makes Transcribe wait for its context to end.
	block bool

	transcribeCalls int
	textCalls       int
	imageCalls      int
	gotText         string
	gotImageURL     string
	gotReference    time.Time
}

func (f *fakeExtractor) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.transcribeCalls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeExtractor) ExtractFromText(ctx context.Context, text string, ref time.Time) (meals.Details, error) {
	f.textCalls++
	f.gotText = text
	f.gotReference = ref
	if f.extractErr != nil {
		return meals.Details{}, f.extractErr
	}
	return f.details, nil
}

func (f *fakeExtractor) ExtractFromImage(ctx context.Context, imageURL string, ref time.Time) (meals.Details, error) {
	f.imageCalls++
	f.gotImageURL = imageURL
	f.gotReference = ref
	if f.extractErr != nil {
		return meals.Details{}, f.extractErr
	}
	return f.details, nil
}

func (f *fakeExtractor) aiCalls() int {
	return f.transcribeCalls + f.textCalls + f.imageCalls
}

type fakeMetrics struct {
	statuses []string
}

func (f *fakeMetrics) MealProcessed(ctx context.Context, status string, elapsed time.Duration) {
	f.statuses = append(f.statuses, status)
}

type fakeUploads struct {
	url     string
	err     error
	gotKey  string
	gotType string
	calls   *[]string
}

func (f *fakeUploads) IssueUploadHandle(ctx context.Context, key, contentType string) (string, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "handle")
	}
	f.gotKey = key
	f.gotType = contentType
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type publishedMessage struct {
	body       string
	attributes map[string]string
}

type fakePublisher struct {
	err       error
	published []publishedMessage
	calls     *[]string
}

func (f *fakePublisher) Publish(ctx context.Context, body string, attributes map[string]string) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, "publish")
	}
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{body: body, attributes: attributes})
	return nil
}
