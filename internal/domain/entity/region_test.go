package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundingBoxCenter(t *testing.T) {
	b := BoundingBox{X1: 10, Y1: 20, X2: 18, Y2: 26}
	x, y := b.Center()
	require.Equal(t, 14, x)
	require.Equal(t, 23, y)
	require.Equal(t, 48, b.Area())
}

func TestBoundingBoxWithin(t *testing.T) {
	cases := []struct {
		name string
		box  BoundingBox
		want bool
	}{
		{"inside", BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 50}, true},
		{"touches far edge", BoundingBox{X1: 90, Y1: 40, X2: 100, Y2: 50}, true},
		{"negative origin", BoundingBox{X1: -1, Y1: 0, X2: 10, Y2: 10}, false},
		{"past width", BoundingBox{X1: 0, Y1: 0, X2: 101, Y2: 10}, false},
		{"past height", BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 51}, false},
		{"zero width", BoundingBox{X1: 5, Y1: 0, X2: 5, Y2: 10}, false},
		{"inverted", BoundingBox{X1: 10, Y1: 10, X2: 5, Y2: 5}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.box.Within(100, 50))
		})
	}
}

func TestBoundingBoxAreaOfInvertedBox(t *testing.T) {
	require.Zero(t, BoundingBox{X1: 10, Y1: 10, X2: 5, Y2: 20}.Area())
}
