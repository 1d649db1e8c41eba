package action

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = 20 * time.Millisecond

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tick(n int) time.Time {
	return epoch.Add(time.Duration(n) * period)
}

// cleanupLog records which named nodes ran cleanup, and on which tick.
type cleanupLog struct {
	tick  int
	calls []string
	at    map[string]int
}

func newCleanupLog() *cleanupLog {
	return &cleanupLog{at: map[string]int{}}
}

func (l *cleanupLog) hook(name string) Option {
	return OnCleanup(func() error {
		l.calls = append(l.calls, name)
		l.at[name] = l.tick
		return nil
	})
}

// drive starts root at tick 0 and updates it until it finishes or maxTicks.
func drive(t *testing.T, root *Action, log *cleanupLog, maxTicks int) int {
	t.Helper()
	require.NoError(t, root.Start(tick(0)))
	for i := 1; i <= maxTicks && !root.IsFinished(); i++ {
		if log != nil {
			log.tick = i
		}
		require.NoError(t, root.Update(tick(i)))
		if root.IsFinished() {
			return i
		}
	}
	return -1
}

func TestWaitZero_NeverFinishedAtStart(t *testing.T) {
	w := Wait(0)
	assert.Equal(t, Pending, w.State())

	require.NoError(t, w.Start(tick(0)))
	assert.Equal(t, Running, w.State())
	assert.False(t, w.IsFinished())

	require.NoError(t, w.Update(tick(0)))
	assert.True(t, w.IsFinished())
	assert.Equal(t, Done, w.State())
}

func TestWait_FinishesAfterDuration(t *testing.T) {
	w := Wait(3 * period)
	require.NoError(t, w.Start(tick(0)))

	for i := 1; i < 3; i++ {
		require.NoError(t, w.Update(tick(i)))
		assert.False(t, w.IsFinished(), "tick %d", i)
	}
	require.NoError(t, w.Update(tick(3)))
	assert.True(t, w.IsFinished())
}

func TestWait_NegativeClampsToZero(t *testing.T) {
	w := Wait(-time.Second)
	require.NoError(t, w.Start(tick(0)))
	require.NoError(t, w.Update(tick(1)))
	assert.True(t, w.IsFinished())
}

func TestStart_Idempotent(t *testing.T) {
	var starts int
	w := Wait(time.Second).Observe(func(e NodeEvent) {
		if e.Type == NodeStarted {
			starts++
		}
	})
	require.NoError(t, w.Start(tick(0)))
	require.NoError(t, w.Start(tick(1)))
	assert.Equal(t, 1, starts)
}

func TestUpdate_NoOpUnlessRunning(t *testing.T) {
	var calls int
	r := RunOnce(func() error { calls++; return nil })

	require.NoError(t, r.Update(tick(0)))
	assert.Equal(t, 0, calls)
	assert.Equal(t, Pending, r.State())

	require.NoError(t, r.Start(tick(0)))
	require.NoError(t, r.Update(tick(1)))
	require.NoError(t, r.Update(tick(2)))
	assert.Equal(t, 1, calls)
	assert.True(t, r.IsFinished())
}

func TestRunOnce_FinishesInFirstUpdate(t *testing.T) {
	var order []string
	root := Series(
		RunOnce(func() error { order = append(order, "a"); return nil }),
		RunOnce(func() error { order = append(order, "b"); return nil }),
	)
	require.NoError(t, root.Start(tick(0)))
	assert.Empty(t, order)

	require.NoError(t, root.Update(tick(1)))
	assert.Equal(t, []string{"a"}, order)
	assert.False(t, root.IsFinished())

	require.NoError(t, root.Update(tick(2)))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.True(t, root.IsFinished())
}

func TestWaitUntil_EvaluatedOnUpdateOnly(t *testing.T) {
	var evals int
	ready := true
	w := WaitUntil(func() bool { evals++; return ready })

	require.NoError(t, w.Start(tick(0)))
	assert.Equal(t, 0, evals)
	assert.False(t, w.IsFinished())

	require.NoError(t, w.Update(tick(1)))
	assert.Equal(t, 1, evals)
	assert.True(t, w.IsFinished())
}

func TestSeries_RunsChildrenInOrder(t *testing.T) {
	var started []string
	root := Series(
		Wait(2*period, Named("first")),
		Wait(period, Named("second")),
		Wait(period, Named("third")),
	).Observe(func(e NodeEvent) {
		if e.Type == NodeStarted && e.Kind == KindWait {
			started = append(started, e.Path)
		}
	})

	finishedAt := drive(t, root, nil, 10)
	assert.Equal(t, 4, finishedAt)
	assert.Equal(t, []string{
		"series/0:first",
		"series/1:second",
		"series/2:third",
	}, started)
}

func TestSeries_CancelOnlyTouchesCurrentChild(t *testing.T) {
	log := newCleanupLog()
	a := Wait(period, log.hook("a"))
	b := Wait(10*period, log.hook("b"))
	c := Wait(period, log.hook("c"))
	root := Series(a, b, c)

	require.NoError(t, root.Start(tick(0)))
	log.tick = 1
	require.NoError(t, root.Update(tick(1)))
	log.tick = 2
	require.NoError(t, root.Update(tick(2)))

	require.NoError(t, root.Cancel(tick(2)))

	assert.Equal(t, []string{"a", "b"}, log.calls)
	assert.Equal(t, Done, a.State())
	assert.Equal(t, Done, b.State())
	assert.Equal(t, Pending, c.State())
	assert.Equal(t, Done, root.State())
}

func TestParallel_JoinCleansEachChildOnItsOwnTick(t *testing.T) {
	log := newCleanupLog()
	root := Parallel(
		Wait(3*period, log.hook("A")),
		Wait(5*period, log.hook("B")),
	)

	finishedAt := drive(t, root, log, 10)
	assert.Equal(t, 5, finishedAt)
	assert.Equal(t, 3, log.at["A"])
	assert.Equal(t, 5, log.at["B"])
}

func TestRace_CancelsLosersInSameTick(t *testing.T) {
	log := newCleanupLog()
	a := Wait(3*period, log.hook("A"))
	b := WaitUntil(func() bool { return false }, log.hook("B"))
	root := Race(a, b)

	finishedAt := drive(t, root, log, 10)
	assert.Equal(t, 3, finishedAt)
	assert.Equal(t, 3, log.at["A"])
	assert.Equal(t, 3, log.at["B"])
	assert.Equal(t, []string{"A", "B"}, log.calls)
	assert.Equal(t, Done, b.State())
}

func TestEmptyCombinators_FinishAtStart(t *testing.T) {
	for name, a := range map[string]*Action{
		"series":   Series(),
		"parallel": Parallel(),
		"race":     Race(),
		"nils":     Series(nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Start(tick(0)))
			assert.True(t, a.IsFinished())
		})
	}
}

func TestSeries_SkipsChildrenFinishedAtStart(t *testing.T) {
	var ran bool
	root := Series(Series(), Parallel(), RunOnce(func() error { ran = true; return nil }))

	require.NoError(t, root.Start(tick(0)))
	assert.False(t, root.IsFinished())
	require.NoError(t, root.Update(tick(1)))
	assert.True(t, ran)
	assert.True(t, root.IsFinished())
}

func TestCleanup_RunsExactlyOnce(t *testing.T) {
	log := newCleanupLog()
	w := Wait(period, log.hook("w"))

	require.NoError(t, w.Start(tick(0)))
	require.NoError(t, w.Update(tick(1)))
	require.NoError(t, w.Cancel(tick(2)))
	require.NoError(t, w.Update(tick(3)))

	assert.Equal(t, []string{"w"}, log.calls)
}

func TestCancel_PendingIsNoOp(t *testing.T) {
	log := newCleanupLog()
	w := Wait(period, log.hook("w"))
	require.NoError(t, w.Cancel(tick(0)))
	assert.Empty(t, log.calls)
	assert.Equal(t, Pending, w.State())
}

func TestCancel_NestedRunningDescendants(t *testing.T) {
	log := newCleanupLog()
	root := Series(
		Parallel(
			Series(Wait(10*period, log.hook("inner"))),
			Wait(10*period, log.hook("side")),
		),
		Wait(period, log.hook("never")),
	)
	require.NoError(t, root.Start(tick(0)))
	require.NoError(t, root.Update(tick(1)))
	require.NoError(t, root.Cancel(tick(2)))

	assert.ElementsMatch(t, []string{"inner", "side"}, log.calls)
}

func TestCancel_JoinsCleanupErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	root := Parallel(
		Wait(time.Second, OnCleanup(func() error { return errA })),
		Wait(time.Second, OnCleanup(func() error { return errB })),
	)
	require.NoError(t, root.Start(tick(0)))

	err := root.Cancel(tick(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, Done, root.State())
}

func TestReset_AllowsRerun(t *testing.T) {
	var calls int
	root := Series(RunOnce(func() error { calls++; return nil }), Wait(0))

	drive(t, root, nil, 5)
	require.True(t, root.IsFinished())

	require.NoError(t, root.Reset())
	assert.Equal(t, Pending, root.State())
	for _, c := range root.Children() {
		assert.Equal(t, Pending, c.State())
	}

	drive(t, root, nil, 5)
	assert.True(t, root.IsFinished())
	assert.Equal(t, 2, calls)
}

func TestReset_RefusesRunning(t *testing.T) {
	root := Series(Wait(time.Second))
	require.NoError(t, root.Start(tick(0)))

	err := root.Reset()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResetWhileRunning)
}

func TestUpdate_ErrorCarriesNodePath(t *testing.T) {
	boom := errors.New("boom")
	root := Series(
		Wait(0),
		Parallel(
			Wait(time.Second),
			RunOnce(func() error { return boom }, Named("fire")),
		),
	).Named("auto")

	require.NoError(t, root.Start(tick(0)))
	require.NoError(t, root.Update(tick(1)))
	err := root.Update(tick(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	ne, ok := AsNodeError(err)
	require.True(t, ok)
	assert.Equal(t, "auto/1:parallel/1:fire", ne.Path)
	assert.Equal(t, KindRunOnce, ne.Kind)
	assert.Equal(t, "update", ne.Op)
}

func TestUpdate_PanicBecomesNodeError(t *testing.T) {
	root := Series(Lambda(func() { panic("sensor unplugged") }, Named("read")))
	require.NoError(t, root.Start(tick(0)))

	err := root.Update(tick(1))
	require.Error(t, err)
	ne, ok := AsNodeError(err)
	require.True(t, ok)
	assert.Equal(t, "series/0:read", ne.Path)
	assert.Contains(t, ne.Error(), "sensor unplugged")
}

func TestPath_BeforeStartIsName(t *testing.T) {
	w := Wait(time.Second, Named("settle"))
	assert.Equal(t, "settle", w.Path())
}

func TestObserver_ReportsLifecycle(t *testing.T) {
	var got []string
	root := Race(Wait(period, Named("fast")), Wait(time.Second, Named("slow"))).
		Named("r").
		Observe(func(e NodeEvent) { got = append(got, e.Type.String()+" "+e.Path) })

	drive(t, root, nil, 5)
	assert.Equal(t, []string{
		"started r",
		"started r/0:fast",
		"started r/1:slow",
		"finished r/0:fast",
		"cancelled r/1:slow",
		"finished r",
	}, got)
}

func TestWalk_DepthFirst(t *testing.T) {
	root := Series(Parallel(Wait(0), Wait(0)), Wait(0))
	var kinds []Kind
	root.Walk(func(a *Action) { kinds = append(kinds, a.Kind()) })
	assert.Equal(t, []Kind{KindSeries, KindParallel, KindWait, KindWait, KindWait}, kinds)
}
