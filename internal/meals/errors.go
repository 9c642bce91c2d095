package meals

import "errors"

var (
	// ErrNotFound is returned when no meal matches the lookup (or it belongs to another user).
	ErrNotFound = errors.New("meal not found")

	// ErrVersionConflict means the stored meal changed since it was read.
	ErrVersionConflict = errors.New("meal version conflict")

	// ErrPersistence wraps every repository failure that is not a lookup miss or conflict.
	ErrPersistence = errors.New("meal persistence error")

	ErrInvalidTransition   = errors.New("invalid meal status transition")
	ErrIncompleteDetails   = errors.New("meal details require name, icon and at least one food")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
)
