package meals

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// NewMeal builds a meal in the uploading state with no extraction data.
func NewMeal(id, userID string, inputType InputType, fileKey string, now time.Time) Meal {
	now = now.UTC()
	return Meal{
		ID:           id,
		UserID:       userID,
		Status:       StatusUploading,
		InputType:    inputType,
		InputFileKey: fileKey,
		Foods:        []Food{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StartProcessing moves the meal to processing. A meal already processing may be
// claimed again (redelivery after a crashed attempt); terminal meals may not.
func (m Meal) StartProcessing(now time.Time) (Meal, error) {
	if m.Status.IsTerminal() {
		return m, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusProcessing)
	}
	next := m.clone(now)
	next.Status = StatusProcessing
	return next, nil
}

// Complete commits extraction details and the success status together.
func (m Meal) Complete(d Details, now time.Time) (Meal, error) {
	if m.Status != StatusProcessing {
		return m, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusSuccess)
	}
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Icon) == "" || len(d.Foods) == 0 {
		return m, ErrIncompleteDetails
	}
	next := m.clone(now)
	name, icon := d.Name, d.Icon
	next.Name = &name
	next.Icon = &icon
	next.Foods = slices.Clone(d.Foods)
	next.Status = StatusSuccess
	return next, nil
}

// Fail marks a non-terminal meal as failed. Extraction data stays empty.
func (m Meal) Fail(now time.Time) (Meal, error) {
	if m.Status.IsTerminal() {
		return m, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusFailed)
	}
	next := m.clone(now)
	next.Status = StatusFailed
	return next, nil
}

func (m Meal) clone(now time.Time) Meal {
	next := m
	next.Foods = slices.Clone(m.Foods)
	next.UpdatedAt = now.UTC()
	return next
}

// InputTypeFor maps an upload content type to the meal input type.
func InputTypeFor(fileType string) (InputType, error) {
	switch fileType {
	case FileTypeAudio:
		return InputTypeAudio, nil
	case FileTypeImage:
		return InputTypePicture, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}

// FileExtension returns the object key extension for an upload content type.
func FileExtension(fileType string) (string, error) {
	switch fileType {
	case FileTypeAudio:
		return "m4a", nil
	case FileTypeImage:
		return "jpeg", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}

// DayWindow returns the inclusive UTC bounds [00:00:00.000, 23:59:59.999] of an
// ISO calendar date.
func DayWindow(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	start := day
	end := day.Add(24*time.Hour - time.Millisecond)
	return start, end, nil
}
