package newsclass

import (
	"errors"
	"fmt"
)

var (
	// ErrDataLoad reports an unreadable or malformed dataset file.
	ErrDataLoad = errors.New("newsclass: cannot load dataset")
	// ErrEmptyDataset is returned when the cleaning rules remove every record.
	ErrEmptyDataset = errors.New("newsclass: dataset is empty after filtering")
	// ErrInvalidSplit is returned for negative split fractions or fractions that leave no training data.
	ErrInvalidSplit = errors.New("newsclass: invalid split fractions")
	// ErrSequenceTooLong is matched by *SequenceTooLongError.
	ErrSequenceTooLong = errors.New("newsclass: sequence longer than max length")
	// ErrUnknownLabel is matched by *UnknownLabelError.
	ErrUnknownLabel = errors.New("newsclass: unknown label")
)

// SequenceTooLongError identifies the batch row whose token sequence overflowed
// the fixed max length under OverflowError.
type SequenceTooLongError struct {
	Index     int
	Length    int
	MaxLength int
}

func (e *SequenceTooLongError) Error() string {
	return fmt.Sprintf("newsclass: batch row %d has %d tokens, max length is %d", e.Index, e.Length, e.MaxLength)
}

func (e *SequenceTooLongError) Is(target error) bool {
	return target == ErrSequenceTooLong
}

// UnknownLabelError carries the category string or label id that has no entry
// in the label vocabulary. Exactly one of Category or ID is meaningful.
type UnknownLabelError struct {
	Category string
	ID       int
	ByID     bool
}

func (e *UnknownLabelError) Error() string {
	if e.ByID {
		return fmt.Sprintf("newsclass: unknown label id %d", e.ID)
	}
	return fmt.Sprintf("newsclass: unknown category %q", e.Category)
}

func (e *UnknownLabelError) Is(target error) bool {
	return target == ErrUnknownLabel
}
