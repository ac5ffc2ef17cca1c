package newsclass

import (
	"fmt"
	"math"
	"strings"
)

// LearningRateAdjuster is implemented by models whose optimizer learning rate
// can be changed between epochs.
type LearningRateAdjuster interface {
	LearningRate() float64
	SetLearningRate(lr float64)
}

// LRScheduler decides the learning rate for the next epoch from a validation
// metric and the current rate.
type LRScheduler interface {
	Step(metric, lr float64) float64
}

// PlateauOptions configure a PlateauScheduler.
type PlateauOptions struct {
	// Factor multiplies the rate on a plateau; must be in (0, 1).
	Factor float64
	// Patience is the number of epochs without improvement that are tolerated.
	Patience int
	// Threshold is the relative improvement that counts as progress.
	Threshold float64
	// Cooldown is the number of epochs to wait after a reduction.
	Cooldown int
	MinLR    float64
}

// minLRDelta ignores reductions too small to matter.
const minLRDelta = 1e-8

// PlateauScheduler lowers the learning rate when a minimized metric stops
// improving.
type PlateauScheduler struct {
	opts     PlateauOptions
	best     float64
	bad      int
	cooldown int
}

func NewPlateauScheduler(opts PlateauOptions) (*PlateauScheduler, error) {
	if opts.Factor <= 0 || opts.Factor >= 1 {
		return nil, fmt.Errorf("newsclass: plateau factor %v must be in (0, 1)", opts.Factor)
	}
	if opts.Patience < 0 || opts.Cooldown < 0 || opts.Threshold < 0 || opts.MinLR < 0 {
		return nil, fmt.Errorf("newsclass: negative plateau option in %+v", opts)
	}
	return &PlateauScheduler{opts: opts, best: math.Inf(1)}, nil
}

// Step records metric and returns the rate to use next.
func (s *PlateauScheduler) Step(metric, lr float64) float64 {
	if metric < s.best*(1-s.opts.Threshold) {
		s.best = metric
		s.bad = 0
	} else {
		s.bad++
	}
	if s.cooldown > 0 {
		s.cooldown--
		s.bad = 0
	}
	if s.bad <= s.opts.Patience {
		return lr
	}
	next := math.Max(lr*s.opts.Factor, s.opts.MinLR)
	if lr-next <= minLRDelta {
		return lr
	}
	s.cooldown = s.opts.Cooldown
	s.bad = 0
	return next
}

// SchedulerConfig selects the learning rate schedule of a run.
type SchedulerConfig struct {
	// Kind is "plateau" or "none".
	Kind      string  `json:"kind,omitempty" toml:"kind" yaml:"kind"`
	Factor    float64 `json:"factor,omitempty" toml:"factor" yaml:"factor"`
	Patience  *int    `json:"patience,omitempty" toml:"patience" yaml:"patience"`
	Threshold float64 `json:"threshold,omitempty" toml:"threshold" yaml:"threshold"`
	Cooldown  int     `json:"cooldown,omitempty" toml:"cooldown" yaml:"cooldown"`
	MinLR     float64 `json:"minLr,omitempty" toml:"min_lr" yaml:"min_lr"`
}

const (
	SchedulerPlateau = "plateau"
	SchedulerNone    = "none"
)

func (c *SchedulerConfig) applyDefaults() {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = SchedulerPlateau
	}
	if c.Factor == 0 {
		c.Factor = 0.1
	}
	if c.Patience == nil {
		p := 10
		c.Patience = &p
	}
	if c.Threshold == 0 {
		c.Threshold = 1e-4
	}
}

// NewScheduler builds the scheduler c describes; "none" yields nil.
func NewScheduler(c SchedulerConfig) (LRScheduler, error) {
	c.applyDefaults()
	switch c.Kind {
	case SchedulerNone:
		return nil, nil
	case SchedulerPlateau:
		s, err := NewPlateauScheduler(PlateauOptions{
			Factor:    c.Factor,
			Patience:  *c.Patience,
			Threshold: c.Threshold,
			Cooldown:  c.Cooldown,
			MinLR:     c.MinLR,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("newsclass: unknown scheduler %q", c.Kind)
	}
}
