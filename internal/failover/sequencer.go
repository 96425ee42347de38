package failover

import "golang.org/x/exp/slices"

// Sequencer is a cursor over an ordered, finite list of endpoints.
// Each endpoint is yielded at most once, in input order.
type Sequencer[E any] struct {
	endpoints []E
	next      int
}

// NewSequencer copies endpoints so later changes by the caller cannot
// reorder or extend the sequence being walked.
func NewSequencer[E any](endpoints []E) *Sequencer[E] {
	return &Sequencer[E]{endpoints: slices.Clone(endpoints)}
}

// Next returns the next endpoint and advances the cursor.
// It returns false once every endpoint has been yielded.
func (s *Sequencer[E]) Next() (E, bool) {
	if s.next >= len(s.endpoints) {
		var zero E
		return zero, false
	}
	e := s.endpoints[s.next]
	s.next++
	return e, true
}

// Remaining reports how many endpoints have not been yielded yet.
func (s *Sequencer[E]) Remaining() int {
	return len(s.endpoints) - s.next
}
