package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/konkon3660/graduationP/internal/actuator/actuatortest"
)

func blockThenAdvance(t *testing.T, fc *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(d)
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		name string
		in   Settings
		want error
	}{
		{"default", DefaultSettings(), nil},
		{"auto bounds", Settings{Mode: ModeAuto, Interval: 1440, Amount: 10}, nil},
		{"bad mode", Settings{Mode: "sometimes", Interval: 60, Amount: 1}, ErrInvalidMode},
		{"interval zero", Settings{Mode: ModeAuto, Interval: 0, Amount: 1}, ErrInvalidInterval},
		{"interval over a day", Settings{Mode: ModeAuto, Interval: 1441, Amount: 1}, ErrInvalidInterval},
		{"amount zero", Settings{Mode: ModeManual, Interval: 60, Amount: 0}, ErrInvalidAmount},
		{"amount eleven", Settings{Mode: ModeManual, Interval: 60, Amount: 11}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPatchApply(t *testing.T) {
	auto := ModeAuto
	interval := 15
	got, err := Patch{Mode: &auto, Interval: &interval}.Apply(DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, Settings{Mode: ModeAuto, Interval: 15, Amount: 1}, got)

	amount := 40
	_, err = Patch{Amount: &amount}.Apply(got)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(nil, nil, DefaultSettings())
	require.Error(t, err)

	_, err = NewScheduler(&actuatortest.Recorder{}, nil, Settings{Mode: ModeAuto})
	require.ErrorIs(t, err, ErrInvalidInterval)
}

func TestFeedNowDispensesPortions(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, DefaultSettings())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.FeedNow(context.Background(), 3) }()

	blockThenAdvance(t, fc, PortionGap)
	blockThenAdvance(t, fc, PortionGap)
	require.NoError(t, <-done)
	require.Equal(t, 3, rec.Count("feed"))
}

func TestOnFeedingReportsRuns(t *testing.T) {
	rec := &actuatortest.Recorder{}
	s, err := NewScheduler(rec, clockwork.NewFakeClock(), DefaultSettings())
	require.NoError(t, err)

	got := make(chan Feeding, 2)
	s.OnFeeding(func(f Feeding) { got <- f })

	require.NoError(t, s.FeedNow(context.Background(), 1))
	f := <-got
	require.Equal(t, SourceManual, f.Source)
	require.Equal(t, 1, f.Portions)
	require.NoError(t, f.Err)

	rec.SetFailOn(func(actuatortest.Call) error { return errors.New("stuck") })
	require.Error(t, s.FeedNow(context.Background(), 1))
	f = <-got
	require.ErrorContains(t, f.Err, "stuck")
	require.Zero(t, f.Portions)
}

func TestFeedNowValidation(t *testing.T) {
	rec := &actuatortest.Recorder{}
	s, err := NewScheduler(rec, clockwork.NewFakeClock(), Settings{Mode: ModeAuto, Interval: 30, Amount: 1})
	require.NoError(t, err)

	require.ErrorIs(t, s.FeedNow(context.Background(), 0), ErrInvalidAmount)
	require.ErrorIs(t, s.FeedNow(context.Background(), 1), ErrAutoMode)
	require.Zero(t, rec.Count("feed"))
}

func TestFeedNowReportsFeederFailure(t *testing.T) {
	rec := &actuatortest.Recorder{}
	rec.SetFailOn(func(actuatortest.Call) error { return errors.New("hopper empty") })
	s, err := NewScheduler(rec, clockwork.NewFakeClock(), DefaultSettings())
	require.NoError(t, err)

	err = s.FeedNow(context.Background(), 2)
	require.ErrorContains(t, err, "portion 1/2")
	require.ErrorContains(t, err, "hopper empty")
}

func TestSchedulerFeedsOnInterval(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, Settings{Mode: ModeAuto, Interval: 1, Amount: 1})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Stop)

	blockThenAdvance(t, fc, time.Minute)
	require.Eventually(t, func() bool { return s.Status().CurrentCount == 1 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 1, rec.Count("feed"))

	st := s.Status()
	require.True(t, st.IsRunning)
	require.NotNil(t, st.NextFeedTime)
	require.Equal(t, fc.Now().Add(time.Minute), *st.NextFeedTime)

	blockThenAdvance(t, fc, time.Minute)
	require.Eventually(t, func() bool { return s.Status().CurrentCount == 2 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 2, rec.Count("feed"))
}

func TestSchedulerMultiplePortions(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, Settings{Mode: ModeAuto, Interval: 10, Amount: 3})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Stop)

	blockThenAdvance(t, fc, 10*time.Minute)
	blockThenAdvance(t, fc, PortionGap)
	blockThenAdvance(t, fc, PortionGap)
	require.Eventually(t, func() bool { return s.Status().CurrentCount == 1 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 3, rec.Count("feed"))
}

func TestSchedulerManualModeIdles(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, DefaultSettings())
	require.NoError(t, err)
	s.Start()
	s.Start()
	t.Cleanup(s.Stop)

	fc.Advance(3 * time.Hour)
	require.Never(t, func() bool { return rec.Count("feed") > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	st := s.Status()
	require.True(t, st.IsRunning)
	require.Nil(t, st.NextFeedTime)
}

func TestSetSettingsReschedules(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, Settings{Mode: ModeAuto, Interval: 60, Amount: 1})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Stop)

	blockThenAdvance(t, fc, 30*time.Minute)
	require.ErrorIs(t, s.SetSettings(Settings{Mode: ModeAuto, Interval: 0, Amount: 1}), ErrInvalidInterval)
	require.NoError(t, s.SetSettings(Settings{Mode: ModeAuto, Interval: 5, Amount: 1}))

	want := fc.Now().Add(5 * time.Minute)
	require.Eventually(t, func() bool {
		next := s.Status().NextFeedTime
		return next != nil && next.Equal(want)
	}, 2*time.Second, time.Millisecond)
	require.Zero(t, rec.Count("feed"))
}

func TestStopHaltsSchedule(t *testing.T) {
	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	s, err := NewScheduler(rec, fc, Settings{Mode: ModeAuto, Interval: 1, Amount: 1})
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	s.Stop()
	s.Stop()
	require.False(t, s.Status().IsRunning)

	fc.Advance(time.Hour)
	require.Never(t, func() bool { return rec.Count("feed") > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
