package clock

import (
	"sync"
	"testing"
	"time"
)

func TestNowUsesWallClockMillis(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	c := New(func() time.Time { return at })
	if got := c.Now(); got != 1_700_000_000_123 {
		t.Fatalf("Now() = %d, want 1700000000123", got)
	}
}

func TestNowNeverGoesBackwards(t *testing.T) {
	times := []int64{5000, 3000, 7000, 6000}
	i := 0
	c := New(func() time.Time {
		ts := time.UnixMilli(times[i])
		i++
		return ts
	})
	want := []int64{5000, 5000, 7000, 7000}
	for n, w := range want {
		if got := c.Now(); got != w {
			t.Fatalf("call %d: Now() = %d, want %d", n, got, w)
		}
	}
}

func TestNowConcurrent(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()
	if c.Now() <= 0 {
		t.Fatal("expected positive timestamp")
	}
}

func TestAccepts(t *testing.T) {
	cases := []struct {
		name              string
		candidate, stored int64
		want              bool
	}{
		{"newer", 2000, 1000, true},
		{"tie", 1000, 1000, true},
		{"older", 500, 1000, false},
		{"first write", 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Accepts(tc.candidate, tc.stored); got != tc.want {
				t.Fatalf("Accepts(%d, %d) = %v, want %v", tc.candidate, tc.stored, got, tc.want)
			}
		})
	}
}

func TestPullOrderLess(t *testing.T) {
	cases := []struct {
		name     string
		tsA      int64
		idA      string
		tsB      int64
		idB      string
		expected bool
	}{
		{"lower ts wins", 1, "z", 2, "a", true},
		{"higher ts loses", 3, "a", 2, "z", false},
		{"tie broken by id", 5, "a", 5, "b", true},
		{"tie reversed", 5, "b", 5, "a", false},
		{"identical", 5, "a", 5, "a", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PullOrderLess(tc.tsA, tc.idA, tc.tsB, tc.idB)
			if got != tc.expected {
				t.Fatalf("PullOrderLess(%d,%q,%d,%q) = %v, want %v",
					tc.tsA, tc.idA, tc.tsB, tc.idB, got, tc.expected)
			}
		})
	}
}
