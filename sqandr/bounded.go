package sqandr

// Bounded is a vector with a fixed capacity. Pushing into a full Bounded is
// refused rather than growing or overwriting.
type Bounded[T any] struct {
	items []T
}

func NewBounded[T any](capacity int) *Bounded[T] {
	return &Bounded[T]{items: make([]T, 0, capacity)}
}

// Push appends v and reports whether there was room for it.
func (b *Bounded[T]) Push(v T) bool {
	if len(b.items) == cap(b.items) {
		return false
	}
	b.items = append(b.items, v)
	return true
}

func (b *Bounded[T]) Len() int { return len(b.items) }

func (b *Bounded[T]) Cap() int { return cap(b.items) }

func (b *Bounded[T]) Full() bool { return len(b.items) == cap(b.items) }

// Items returns the stored values. The slice aliases the Bounded's storage.
func (b *Bounded[T]) Items() []T { return b.items }

func (b *Bounded[T]) Reset() { b.items = b.items[:0] }
