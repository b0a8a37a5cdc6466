package secframe

// aggregate resolves the original completions of one flush batch from a
// variable number of downstream sub-write outcomes.
//
// The protector decides how many framed buffers a batch becomes, and that
// count is unknown until ProtectFlush returns, so the record cannot be a
// fixed countdown. Instead it runs in two phases: sub-writes register while
// the protect call emits, then seal declares the final count. No original
// resolves before seal.
//
// Outcome is all-or-nothing: once sealed, all originals succeed together
// when every sub-write has succeeded; the first sub-write failure (or a
// protect failure) fails every original with that cause, exactly once, and
// later sub-write outcomes are ignored.
type aggregate struct {
	originals   []*Completion
	registered  int
	outstanding int
	sealed      bool
	failed      bool
}

func newAggregate(capacity int) *aggregate {
	return &aggregate{originals: make([]*Completion, 0, capacity)}
}

// addOriginal appends a caller completion. Must happen before seal.
func (a *aggregate) addOriginal(done *Completion) {
	a.originals = append(a.originals, done)
}

// subWrite registers one downstream send and returns the completion to
// hand to it. The sub-write may resolve synchronously; resolution before
// seal only updates counters.
func (a *aggregate) subWrite() *Completion {
	a.registered++
	a.outstanding++
	done := NewCompletion()
	done.OnResolve(a.subWriteResolved)
	return done
}

func (a *aggregate) subWriteResolved(err error) {
	if a.failed {
		return
	}
	if err != nil {
		a.fail(err)
		return
	}
	a.outstanding--
	a.maybeSucceed()
}

// seal declares that no further sub-writes will register for this batch.
// A well-behaved protector emits at least one frame for a nonempty batch;
// sealing with zero sub-writes while originals exist would otherwise report
// undelivered data as sent, so it fails the batch instead.
func (a *aggregate) seal() {
	if a.sealed {
		return
	}
	a.sealed = true
	if a.failed {
		return
	}
	if a.registered == 0 && len(a.originals) > 0 {
		a.fail(&SecurityError{Err: ErrNoFramesEmitted})
		return
	}
	a.maybeSucceed()
}

// fail resolves every original with err and short-circuits the record.
// Safe to call before seal (protect call failed mid-batch).
func (a *aggregate) fail(err error) {
	if a.failed {
		return
	}
	a.failed = true
	for _, done := range a.originals {
		done.Resolve(err)
	}
}

func (a *aggregate) maybeSucceed() {
	if !a.sealed || a.failed || a.outstanding != 0 {
		return
	}
	for _, done := range a.originals {
		done.Resolve(nil)
	}
}
