package newsclass

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"
)

// OverflowPolicy decides what the collator does with a sequence longer than
// the vocabulary's max length. Sequences built from the training corpus never
// overflow; inference inputs can.
type OverflowPolicy int

const (
	// OverflowTruncate keeps the first MaxLength ids.
	OverflowTruncate OverflowPolicy = iota
	// OverflowError fails the batch with *SequenceTooLongError.
	OverflowError
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowTruncate:
		return "truncate"
	case OverflowError:
		return "error"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy accepts "truncate" (or empty) and "error".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate":
		return OverflowTruncate, nil
	case "error":
		return OverflowError, nil
	default:
		return OverflowTruncate, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Collator turns (category, text) pairs into rectangular id batches. It only
// reads the vocabulary, so one collator may be shared by concurrent workers.
type Collator struct {
	vocab  *Vocabulary
	policy OverflowPolicy
}

// NewCollator binds a vocabulary and an overflow policy.
func NewCollator(v *Vocabulary, policy OverflowPolicy) *Collator {
	return &Collator{vocab: v, policy: policy}
}

// Policy returns the collator's overflow policy.
func (c *Collator) Policy() OverflowPolicy { return c.policy }

// MaxLength is the row width of every batch this collator produces.
func (c *Collator) MaxLength() int { return c.vocab.MaxLength() }

// Collate maps every category to its label id and every text to a row of
// exactly MaxLength token ids, right-padded with the pad id.
func (c *Collator) Collate(examples []Example) (Batch, error) {
	b := Batch{
		Labels: make([]int, len(examples)),
		Texts:  make([][]int, len(examples)),
	}
	for i, ex := range examples {
		label, err := c.vocab.LabelID(ex.Category)
		if err != nil {
			return Batch{}, fmt.Errorf("batch row %d: %w", i, err)
		}
		row, err := c.Pad(c.vocab.Encode(ex.Text), i)
		if err != nil {
			return Batch{}, err
		}
		b.Labels[i] = label
		b.Texts[i] = row
	}
	return b, nil
}

// EncodeTexts collates texts without labels, as the predictor needs.
func (c *Collator) EncodeTexts(texts []string) ([][]int, error) {
	out := make([][]int, len(texts))
	for i, text := range texts {
		row, err := c.Pad(c.vocab.Encode(text), i)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Pad applies the overflow policy and right-pads ids to MaxLength. index is
// only used to report which row overflowed.
func (c *Collator) Pad(ids []int, index int) ([]int, error) {
	maxLen := c.vocab.MaxLength()
	if len(ids) > maxLen {
		if c.policy == OverflowError {
			return nil, &SequenceTooLongError{Index: index, Length: len(ids), MaxLength: maxLen}
		}
		ids = ids[:maxLen]
	}
	row := make([]int, maxLen)
	n := copy(row, ids)
	for j := n; j < maxLen; j++ {
		row[j] = c.vocab.PadID()
	}
	return row, nil
}

// Tensors packs the batch into dense int tensors of shape [batch] and
// [batch, max_length]. Device placement is left to the consumer. An empty
// batch yields nil tensors.
func (b Batch) Tensors() (labels, texts *tensor.Dense) {
	rows := len(b.Texts)
	if rows == 0 {
		return nil, nil
	}
	cols := len(b.Texts[0])
	flat := make([]int, 0, rows*cols)
	for _, row := range b.Texts {
		flat = append(flat, row...)
	}
	lab := make([]int, len(b.Labels))
	copy(lab, b.Labels)
	labels = tensor.New(tensor.WithShape(len(lab)), tensor.WithBacking(lab))
	texts = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(flat))
	return labels, texts
}
