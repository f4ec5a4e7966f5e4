package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

func TestValueOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		name string
		want string
		kind queue.Kind
	}{
		{name: "string", in: "Ann", want: "Ann", kind: queue.KindString},
		{name: "int", in: 42, want: "42", kind: queue.KindInt},
		{name: "int8", in: int8(-8), want: "-8", kind: queue.KindInt},
		{name: "int16", in: int16(1600), want: "1600", kind: queue.KindInt},
		{name: "uint8", in: uint8(255), want: "255", kind: queue.KindInt},
		{name: "uint16", in: uint16(65535), want: "65535", kind: queue.KindInt},
		{name: "uint", in: uint(7), want: "7", kind: queue.KindInt},
		{name: "uint64 at int64 max", in: uint64(math.MaxInt64), want: "9223372036854775807", kind: queue.KindInt},
		{name: "uint64", in: uint64(12), want: "12", kind: queue.KindInt},
		{name: "float", in: 1.5, want: "1.5", kind: queue.KindFloat},
		{name: "bool", in: true, want: "true", kind: queue.KindBool},
		{name: "json number", in: json.Number("7"), want: "7", kind: queue.KindInt},
		{name: "duration stringer", in: time.Minute, want: "1m0s", kind: queue.KindString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := queue.ValueOf(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.String())
		})
	}

	for _, bad := range []any{
		nil,
		[]string{"a"},
		map[string]any{"a": 1},
		uint64(math.MaxUint64),
		uint64(math.MaxInt64) + 1,
	} {
		_, err := queue.ValueOf(bad)
		require.ErrorIs(t, err, queue.ErrInvalidVariable)
	}
}

func TestVars_JSON(t *testing.T) {
	t.Parallel()

	var v queue.Vars
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Ann","seats":3,"ratio":0.5,"pro":true}`), &v))
	assert.Equal(t, queue.KindInt, v["seats"].Kind())
	assert.Equal(t, queue.KindFloat, v["ratio"].Kind())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ann","seats":3,"ratio":0.5,"pro":true}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"nested":{"a":1}}`), &v))

	_, err = json.Marshal(queue.Vars{"zero": {}})
	require.Error(t, err)
}

func TestVarsFromMap(t *testing.T) {
	t.Parallel()

	v, err := queue.VarsFromMap(map[string]any{"plan": "pro", "seats": 3})
	require.NoError(t, err)
	s, ok := v.Lookup("seats")
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	_, err = queue.VarsFromMap(map[string]any{"list": []int{1}})
	require.ErrorIs(t, err, queue.ErrInvalidVariable)
	assert.Contains(t, err.Error(), `"list"`)
}

func TestVars_Merge(t *testing.T) {
	t.Parallel()

	base := queue.Vars{"a": queue.String("1"), "b": queue.String("2")}
	merged := base.Merge(queue.Vars{"b": queue.String("x")})

	assert.Equal(t, "x", merged["b"].String())
	assert.Equal(t, "2", base["b"].String())

	_, ok := merged.Lookup("missing")
	assert.False(t, ok)
}

func TestDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7_200_000*time.Millisecond, queue.Delay(2, queue.Hours))
	assert.Equal(t, 604_800_000*time.Millisecond, queue.Delay(1, queue.Weeks))
	assert.Equal(t, 3*24*time.Hour, queue.Delay(3, queue.Days))
	assert.Equal(t, 90*time.Minute, queue.Delay(90, queue.Minutes))
	assert.Zero(t, queue.Delay(5, queue.DelayUnit("fortnights")))
}

func TestParseDelayUnit(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]queue.DelayUnit{
		"minutes": queue.Minutes,
		"Hour":    queue.Hours,
		" day ":   queue.Days,
		"weeks":   queue.Weeks,
	} {
		got, err := queue.ParseDelayUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := queue.ParseDelayUnit("months")
	require.ErrorIs(t, err, queue.ErrInvalidDelayUnit)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, queue.StatusScheduled.Active())
	assert.True(t, queue.StatusProcessing.Active())
	assert.False(t, queue.StatusFailed.Active())
	assert.True(t, queue.StatusCancelled.Terminal())
	assert.False(t, queue.StatusProcessing.Terminal())
	assert.False(t, queue.Status("paused").Valid())
}

func TestEmailJob_Due(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	j := queue.EmailJob{Status: queue.StatusScheduled, ScheduledFor: now}

	assert.True(t, j.Due(now, 3))
	j.Attempts = 3
	assert.False(t, j.Due(now, 3))
	j.Attempts = 0
	j.ScheduledFor = now.Add(time.Second)
	assert.False(t, j.Due(now, 3))
}

func TestStats_Set(t *testing.T) {
	t.Parallel()

	var st queue.Stats
	st.Set(queue.StatusScheduled, 4)
	st.Set(queue.StatusSent, 10)
	st.Set(queue.StatusFailed, 2)
	st.Set(queue.Status("bogus"), 99)
	st.Retryable = 1

	assert.Equal(t, 16, st.Total)
	assert.Equal(t, 10, st.Get(queue.StatusSent))
	assert.Zero(t, st.Get(queue.StatusCancelled))
}

type recordingSink struct {
	err     error
	entries []queue.LogEntry
}

func (s *recordingSink) Append(_ context.Context, e queue.LogEntry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := &recordingSink{err: boom}
	b := &recordingSink{}

	err := queue.MultiSink(a, nil, b).Append(context.Background(), queue.LogEntry{JobID: "j1"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, a.entries, 1)
	assert.Len(t, b.entries, 1)
}
