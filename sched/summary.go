package sched

// Summary reports the outcome of one scheduling pass (or, from Run, the
// aggregate over all passes).
type Summary struct {
	// ChunksTouched is the number of chunk groups written back.
	ChunksTouched int
	// RequestsApplied is the number of update requests applied.
	RequestsApplied int
	// DerivedQueued is the number of secondary requests queued for the
	// next pass (neighbor notifications, lighting recomputes).
	DerivedQueued int
	// Failed lists chunk groups that could not be processed.
	Failed []Failure
}

// add folds another pass into the aggregate.
func (s *Summary) add(o Summary) {
	s.ChunksTouched += o.ChunksTouched
	s.RequestsApplied += o.RequestsApplied
	s.DerivedQueued += o.DerivedQueued
	s.Failed = append(s.Failed, o.Failed...)
}
