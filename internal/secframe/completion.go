package secframe

// Completion is a one-shot outcome carrier for an asynchronous write.
// The first Resolve wins; later calls are ignored. Observers registered
// with OnResolve run in registration order when the outcome arrives, or
// immediately if it already has.
//
// Completions follow the per-connection serial execution model: they are
// not safe for concurrent use and need no locking under it.
type Completion struct {
	done      bool
	err       error
	observers []func(error)
}

func NewCompletion() *Completion {
	return &Completion{}
}

// Resolve delivers the outcome. A nil err is success. Repeated calls are
// ignored so shared failure paths cannot double-resolve.
func (c *Completion) Resolve(err error) {
	if c.done {
		return
	}
	c.done = true
	c.err = err
	obs := c.observers
	c.observers = nil
	for _, fn := range obs {
		fn(err)
	}
}

// Done reports whether the outcome has been delivered.
func (c *Completion) Done() bool {
	return c.done
}

// Err returns the delivered outcome. Only meaningful once Done.
func (c *Completion) Err() error {
	return c.err
}

// OnResolve registers fn to run with the outcome. If the completion is
// already resolved, fn runs before OnResolve returns.
func (c *Completion) OnResolve(fn func(error)) {
	if c.done {
		fn(c.err)
		return
	}
	c.observers = append(c.observers, fn)
}
