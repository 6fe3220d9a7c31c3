package vm

// Inline caching for named references
//
// A named reference is looked up in the label table the first time a jump,
// put or get consumes it. The instruction that pushed the reference is then
// rewritten in place to the absolute form, so later executions of the same
// call site skip the lookup. Cached sites are never invalidated: a label
// redefined afterwards is only seen by call sites that have not run yet.

// CacheStats counts reference resolutions for profiling.
type CacheStats struct {
	Hits   uint64 // absolute references consumed without a lookup
	Misses uint64 // named references resolved through the label table
}

// HitRate returns the fraction of resolutions served without a lookup.
func (c CacheStats) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// lookupRef resolves a reference value to an instruction index without
// touching the program.
func (s *State) lookupRef(v Value) (int, error) {
	switch v.Kind {
	case KindAbsRef:
		return v.Index, nil
	case KindNamedRef:
		base, ok := s.labels.Lookup(v.Name)
		if !ok {
			return 0, unresolved(v.Name)
		}
		return base + v.Offset, nil
	}
	return 0, typeMismatch("a reference", v)
}

// resolveRef resolves a reference value consumed by the instruction at
// consumer. When the reference came from a named push directly before the
// consumer, that push is rewritten to an absolute one.
func (s *State) resolveRef(v Value, consumer int) (int, error) {
	if v.Kind == KindAbsRef {
		s.cache.Hits++
		return v.Index, nil
	}
	target, err := s.lookupRef(v)
	if err != nil {
		return 0, err
	}
	s.cache.Misses++
	s.rewriteSite(consumer-1, v, target)
	return target, nil
}

// resolveSite resolves the reference pushed by the instruction at pos and
// caches it there.
func (s *State) resolveSite(pos int) (int, error) {
	in := s.prog.Code[pos]
	if in.Op == OpRefAbs {
		s.cache.Hits++
		return in.Index, nil
	}
	v := Named(in.Text, in.Offset)
	target, err := s.lookupRef(v)
	if err != nil {
		return 0, err
	}
	s.cache.Misses++
	s.rewriteSite(pos, v, target)
	return target, nil
}

func (s *State) rewriteSite(pos int, v Value, target int) {
	in, ok := s.prog.At(pos)
	if !ok || in.Op != OpRefNamed || in.Text != v.Name || in.Offset != v.Offset {
		return
	}
	s.prog.Code[pos] = RefAbs(target)
	if s.Trace {
		log.Debugf("cached @%d: %s -> @%d", pos, v.Name, target)
	}
}
