package sqandr

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Span tracks the range of the values it has seen.
type Span[T constraints.Integer] struct {
	Min   T
	Max   T
	Count int
}

func (s *Span[T]) Add(v T) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
}

func (s Span[T]) String() string {
	if s.Count == 0 {
		return "[]"
	}
	return fmt.Sprintf("[%d, %d]", s.Min, s.Max)
}

// CycleStats summarizes one receive buffer pass.
type CycleStats struct {
	Samples         int
	NormalHeaders   int
	InvertedHeaders int
	Decoded         int
	Dropped         int
	Amplitude       Span[Amplitude]
}

func (s CycleStats) Headers() int { return s.NormalHeaders + s.InvertedHeaders }
