package keygroup

import (
	"fmt"
	"testing"
)

func TestNewRange(t *testing.T) {
	tests := []struct {
		start, end int
		wantErr    bool
	}{
		{0, 0, false},
		{0, 127, false},
		{10, 10, false},
		{0, MaxKeyGroups - 1, false},
		{-1, 5, true},
		{5, 4, true},
		{0, MaxKeyGroups, true},
		{MaxKeyGroups, MaxKeyGroups, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("[%d,%d]", tt.start, tt.end), func(t *testing.T) {
			r, err := NewRange(tt.start, tt.end)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewRange(%d, %d) = %v, want error", tt.start, tt.end, r)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRange(%d, %d): %v", tt.start, tt.end, err)
			}
			if r.Count() != tt.end-tt.start+1 {
				t.Fatalf("Count = %d, want %d", r.Count(), tt.end-tt.start+1)
			}
			if !r.Contains(tt.start) || !r.Contains(tt.end) {
				t.Fatalf("range %v does not contain its bounds", r)
			}
			if r.Contains(tt.start - 1) || r.Contains(tt.end+1) {
				t.Fatalf("range %v contains out-of-range index", r)
			}
		})
	}
}

func TestRangeIntersect(t *testing.T) {
	a := Range{Start: 0, End: 63}
	b := Range{Start: 32, End: 127}

	got, ok := a.Intersect(b)
	if !ok {
		t.Fatalf("Intersect = empty, want [32, 63]")
	}
	if got.Start != 32 || got.End != 63 {
		t.Fatalf("Intersect = %v, want [32, 63]", got)
	}

	c := Range{Start: 100, End: 200}
	if _, ok := a.Intersect(c); ok {
		t.Fatalf("Intersect of disjoint ranges reported overlap")
	}
}

func TestAssignStable(t *testing.T) {
	key := []byte("stream-key-42")

	first := Assign(key, 128)
	for i := 0; i < 100; i++ {
		if got := Assign(key, 128); got != first {
			t.Fatalf("Assign unstable: %d != %d", got, first)
		}
	}
	if first < 0 || first >= 128 {
		t.Fatalf("Assign = %d, want in [0, 128)", first)
	}
}

func TestAssignDistribution(t *testing.T) {
	const maxParallelism = 16

	seen := make(map[int]int)
	for i := 0; i < 10000; i++ {
		g := Assign([]byte(fmt.Sprintf("key-%d", i)), maxParallelism)
		if g < 0 || g >= maxParallelism {
			t.Fatalf("Assign = %d out of bounds", g)
		}
		seen[g]++
	}

	// Every group should receive a reasonable share.
	for g := 0; g < maxParallelism; g++ {
		if seen[g] == 0 {
			t.Fatalf("key group %d received no keys", g)
		}
	}
}

func TestRangeOfOperatorCoversAll(t *testing.T) {
	const (
		maxParallelism = 128
		parallelism    = 3
	)

	covered := make([]bool, maxParallelism)
	prevEnd := -1
	for idx := 0; idx < parallelism; idx++ {
		r, err := RangeOfOperator(maxParallelism, parallelism, idx)
		if err != nil {
			t.Fatalf("RangeOfOperator(%d): %v", idx, err)
		}
		if r.Start != prevEnd+1 {
			t.Fatalf("range %d starts at %d, want %d", idx, r.Start, prevEnd+1)
		}
		for g := r.Start; g <= r.End; g++ {
			covered[g] = true
		}
		prevEnd = r.End
	}
	if prevEnd != maxParallelism-1 {
		t.Fatalf("last range ends at %d, want %d", prevEnd, maxParallelism-1)
	}
	for g, ok := range covered {
		if !ok {
			t.Fatalf("key group %d not covered", g)
		}
	}
}

func TestRangeOfOperatorInvalid(t *testing.T) {
	if _, err := RangeOfOperator(128, 0, 0); err == nil {
		t.Fatalf("expected error for zero parallelism")
	}
	if _, err := RangeOfOperator(128, 4, 4); err == nil {
		t.Fatalf("expected error for out-of-range operator index")
	}
	if _, err := RangeOfOperator(4, 8, 0); err == nil {
		t.Fatalf("expected error for parallelism above max")
	}
}
