package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccept_Window(t *testing.T) {
	t0 := time.UnixMilli(1_700_000_000_000)
	cases := []struct {
		delta time.Duration
		want  bool
	}{
		{0, false},
		{50 * time.Millisecond, false},
		{1999 * time.Millisecond, false},
		{2000 * time.Millisecond, true},
		{2500 * time.Millisecond, true},
	}
	for _, c := range cases {
		f := New(0)
		require.True(t, f.Accept("04A32B91", t0))
		require.Equal(t, c.want, f.Accept("04A32B91", t0.Add(c.delta)), "delta=%s", c.delta)
	}
}

func TestAccept_DifferentCardAlwaysForwarded(t *testing.T) {
	f := New(DefaultWindow)
	t0 := time.UnixMilli(1000)
	require.True(t, f.Accept("AA", t0))
	require.True(t, f.Accept("BB", t0.Add(time.Millisecond)))
	// AA is no longer the last card, so it passes immediately.
	require.True(t, f.Accept("AA", t0.Add(2*time.Millisecond)))
	id, at := f.Last()
	require.Equal(t, "AA", id)
	require.Equal(t, t0.Add(2*time.Millisecond), at)
}

func TestAccept_RejectDoesNotExtendWindow(t *testing.T) {
	f := New(DefaultWindow)
	t0 := time.UnixMilli(0)
	require.True(t, f.Accept("AA", t0))
	require.False(t, f.Accept("AA", t0.Add(1500*time.Millisecond)))
	require.True(t, f.Accept("AA", t0.Add(2000*time.Millisecond)))
}

func TestNew_DefaultWindow(t *testing.T) {
	require.Equal(t, DefaultWindow, New(-1).Window())
	require.Equal(t, time.Second, New(time.Second).Window())
}
