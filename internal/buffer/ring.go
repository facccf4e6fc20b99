package buffer

// Ring keeps the most recent entries up to a fixed capacity.
// It is not safe for concurrent use; callers guard it.
type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}

	if r.count < len(r.entries) {
		index := (r.start + r.count) % len(r.entries)
		r.entries[index] = entry
		r.count++
		return
	}

	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// List returns all retained entries, oldest first.
func (r *Ring[T]) List() []T {
	return r.Last(0)
}

// Last returns up to limit of the newest entries, oldest first.
// A limit <= 0 returns everything retained.
func (r *Ring[T]) Last(limit int) []T {
	if r == nil || r.count == 0 {
		return nil
	}
	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	out := make([]T, limit)
	skip := r.count - limit
	for i := 0; i < limit; i++ {
		index := (r.start + skip + i) % len(r.entries)
		out[i] = r.entries[index]
	}
	return out
}
