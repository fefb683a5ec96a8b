package containers

// NotFound is returned by Find when the value is absent.
const NotFound = -1

// Set keeps unique values in insertion order.
type Set[T comparable] struct {
	index map[T]int
	items []T
}

func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{index: make(map[T]int)}
	for _, v := range values {
		s.Insert(v)
	}
	return s
}

// Insert adds value and reports whether it was not already present.
func (s *Set[T]) Insert(value T) bool {
	if _, exists := s.index[value]; exists {
		return false
	}
	s.index[value] = len(s.items)
	s.items = append(s.items, value)
	return true
}

// Find returns the insertion position of value or NotFound.
func (s *Set[T]) Find(value T) int {
	if i, exists := s.index[value]; exists {
		return i
	}
	return NotFound
}

func (s *Set[T]) Contains(value T) bool {
	_, exists := s.index[value]
	return exists
}

func (s *Set[T]) Len() int {
	return len(s.items)
}

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
