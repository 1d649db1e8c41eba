package action

import "time"

// Wait finishes once d has elapsed since Start, measured at Update. It is
// never finished at Start: Wait(0) finishes on the first Update. Negative
// durations are treated as zero.
func Wait(d time.Duration, opts ...Option) *Action {
	if d < 0 {
		d = 0
	}
	return newAction(KindWait, &wait{d: d}, opts)
}

// WaitUntil finishes on the first Update at which pred returns true. The
// predicate is not evaluated at Start.
//
// pred should depend only on externally observable state (a sensor snapshot,
// a subsystem flag), never on the node's own progress.
func WaitUntil(pred func() bool, opts ...Option) *Action {
	return newAction(KindWaitUntil, &waitUntil{pred: pred}, opts)
}

// RunOnce calls fn on its first Update and finishes in that same Update.
// A nil fn finishes without doing anything.
func RunOnce(fn func() error, opts ...Option) *Action {
	return newAction(KindRunOnce, &runOnce{fn: fn}, opts)
}

// Lambda is RunOnce for callbacks that cannot fail.
func Lambda(fn func(), opts ...Option) *Action {
	return RunOnce(func() error {
		if fn != nil {
			fn()
		}
		return nil
	}, opts...)
}

type leaf struct{}

func (leaf) cancel(time.Time) error { return nil }
func (leaf) children() []*Action    { return nil }

type wait struct {
	leaf
	d       time.Duration
	started time.Time
	last    time.Time
	updated bool
}

func (w *wait) start(now time.Time) error {
	w.started = now
	w.last = now
	w.updated = false
	return nil
}

func (w *wait) update(now time.Time) error {
	w.last = now
	w.updated = true
	return nil
}

func (w *wait) finished() bool {
	return w.updated && w.last.Sub(w.started) >= w.d
}

func (w *wait) reset() {
	w.updated = false
}

type waitUntil struct {
	leaf
	pred func() bool
	met  bool
}

func (w *waitUntil) start(time.Time) error {
	w.met = false
	return nil
}

func (w *waitUntil) update(time.Time) error {
	w.met = w.pred == nil || w.pred()
	return nil
}

func (w *waitUntil) finished() bool {
	return w.met
}

func (w *waitUntil) reset() {
	w.met = false
}

type runOnce struct {
	leaf
	fn  func() error
	ran bool
}

func (r *runOnce) start(time.Time) error {
	r.ran = false
	return nil
}

func (r *runOnce) update(time.Time) error {
	if r.ran {
		return nil
	}
	r.ran = true
	if r.fn == nil {
		return nil
	}
	return r.fn()
}

func (r *runOnce) finished() bool {
	return r.ran
}

func (r *runOnce) reset() {
	r.ran = false
}
