package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sweeney/bat-detector/internal/gpio"
	"github.com/sweeney/bat-detector/internal/logic"
	"github.com/sweeney/bat-detector/internal/queue"
	"github.com/sweeney/bat-detector/internal/report"
	"github.com/sweeney/bat-detector/internal/tick"
)

// TestMain provides goleak verification to detect goroutine leaks
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const quiet = 10000

type fixture struct {
	q    *queue.Queue
	chip *gpio.FakeChip
	rep  *report.Fake
	loop *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		q:    queue.New(0),
		chip: gpio.NewFakeChip(),
		rep:  report.NewFake(),
	}
	f.loop = New(f.q, f.chip, f.rep)
	require.NoError(t, f.loop.Register(logic.NewAggregator(17, quiet), gpio.DefaultPinGreenLED))
	require.NoError(t, f.loop.Register(logic.NewAggregator(27, quiet), gpio.DefaultPinRedLED))
	require.NoError(t, f.loop.Register(logic.NewAggregator(22, quiet), gpio.NoOutput))
	return f
}

func (f *fixture) push(pin int, tk tick.Tick, level int) {
	f.q.Push(logic.Record{Pin: pin, Tick: tk, Level: level})
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	err := f.loop.Register(logic.NewAggregator(17, quiet), gpio.NoOutput)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicatePin)
	assert.Equal(t, []int{17, 22, 27}, f.loop.Pins())
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	for i, tk := range []tick.Tick{1000, 3000, 5500, 20000} {
		f.push(17, tk, (i+1)%2)
	}

	n, err := f.loop.Drain()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	bursts := f.rep.Bursts()
	require.Len(t, bursts, 1)
	assert.Equal(t, 17, bursts[0].Pin)
	assert.Equal(t, uint32(4), bursts[0].Clicks)
	assert.Equal(t, uint64(4500), bursts[0].Duration)

	// The aggregator was restarted at the closing tick, so nothing is open.
	assert.Empty(t, f.loop.Pending())
}

func TestRoutingFidelity(t *testing.T) {
	f := newFixture(t)

	// Interleave pins; only pin 27 sees a gap above the quiet interval.
	f.push(17, 100, 1)
	f.push(27, 100, 1)
	f.push(17, 200, 0)
	f.push(22, 150, 1)
	f.push(27, 50000, 0)

	_, err := f.loop.Drain()
	require.NoError(t, err)

	bursts := f.rep.Bursts()
	require.Len(t, bursts, 1)
	assert.Equal(t, logic.Burst{Pin: 27, Clicks: 2, Duration: 0, Start: 100, End: 50000}, bursts[0])

	pending := f.loop.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, 17, pending[0].Pin)
	assert.Equal(t, uint32(2), pending[0].Clicks)
	assert.Equal(t, uint64(100), pending[0].Duration)
	assert.Equal(t, 22, pending[1].Pin)
	assert.Equal(t, uint32(1), pending[1].Clicks)
}

func TestIndicatorWrites(t *testing.T) {
	f := newFixture(t)
	f.push(17, 100, 1)
	f.push(27, 100, 1)
	f.push(17, 200, 0)
	f.push(22, 300, 1)

	_, err := f.loop.Drain()
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0}, f.chip.WritesTo(gpio.DefaultPinGreenLED))
	assert.Equal(t, []int{1}, f.chip.WritesTo(gpio.DefaultPinRedLED))
	// Pin 22 has no indicator.
	assert.Len(t, f.chip.Writes(), 3)
}

func TestIndicatorErrorDoesNotStopProcessing(t *testing.T) {
	f := newFixture(t)
	f.chip.WriteError = errors.New("led gone")
	f.push(17, 100, 1)
	f.push(17, 90000, 0)

	_, err := f.loop.Drain()
	require.NoError(t, err)
	assert.Len(t, f.rep.Bursts(), 1)
}

func TestReportErrorDoesNotStopProcessing(t *testing.T) {
	f := newFixture(t)
	f.rep.ReportError = errors.New("sink down")

	f.push(17, 0, 1)
	f.push(17, 20000, 0)
	f.push(17, 40000, 1)

	n, err := f.loop.Drain()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// Each closed burst is reported once even though the sink failed.
	assert.Len(t, f.rep.Bursts(), 1)
}

func TestRestartAfterReport(t *testing.T) {
	f := newFixture(t)

	// Two bursts: [0, 100, 200] closed by 50000; then [60000, 60500] closed by 90000.
	for _, tk := range []tick.Tick{0, 100, 200, 50000, 60000, 60500, 90000} {
		f.push(17, tk, 0)
	}
	_, err := f.loop.Drain()
	require.NoError(t, err)

	bursts := f.rep.Bursts()
	require.Len(t, bursts, 2)
	assert.Equal(t, uint32(4), bursts[0].Clicks)
	assert.Equal(t, uint64(200), bursts[0].Duration)
	assert.Equal(t, uint32(3), bursts[1].Clicks)
	assert.Equal(t, uint64(500), bursts[1].Duration)
	assert.Equal(t, tick.Tick(60000), bursts[1].Start)
}

func TestUnknownPinIsFatal(t *testing.T) {
	f := newFixture(t)
	f.push(17, 100, 1)
	f.push(4, 200, 1)
	f.push(17, 300, 0)

	n, err := f.loop.Drain()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPin)
	assert.Contains(t, err.Error(), "4")
	assert.Equal(t, 1, n)
}

func TestRunStopsOnUnknownPin(t *testing.T) {
	f := newFixture(t)
	f.push(4, 200, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := f.loop.Run(ctx)
	assert.ErrorIs(t, err, ErrUnknownPin)
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	f.push(17, 0, 1)
	f.push(17, 20000, 0)

	require.Eventually(t, func() bool { return len(f.rep.Bursts()) == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDrainAfterRunCompletesQueuedRecords(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.loop.Run(ctx))

	// Records that arrived while shutting down are still processed.
	f.push(27, 10, 1)
	f.push(27, 99999, 0)
	n, err := f.loop.Drain()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.rep.Bursts(), 1)
}
