package pool

import "testing"

func TestMaxUint8ClampsToRange(t *testing.T) {
	cases := []struct {
		v, min, want int
	}{
		{5, 10, 10},
		{20, 10, 20},
		{300, 10, 255},
		{0, 1, 1},
	}
	for _, tc := range cases {
		if got := maxUint8(tc.v, tc.min); got != tc.want {
			t.Errorf("maxUint8(%d, %d) = %d, want %d", tc.v, tc.min, got, tc.want)
		}
	}
}
