package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// reference values agreed on by deployed nodes and clients
func Test_Hashit_KnownValues(t *testing.T) {
	known := map[string]int32{
		"dungeons":     1324605291,
		"dragons":      1065327891,
		"1":            796551205,
		"key":          508813592,
		"waterbuffalo": 153708134,
		"abc":          1714799283,
		"hello world":  1334188134,
		"x":            746090816,
	}
	for key, want := range known {
		require.Equal(t, want, Hashit(key), "key %q", key)
	}
}

func Test_Hashit_Deterministic(t *testing.T) {
	keys := []string{"a", "bb", "a longer key than sixteen bytes", "dungeons"}
	for _, k := range keys {
		require.Equal(t, Hashit(k), Hashit(k))
	}
}

func Test_Hashit_NonNegative(t *testing.T) {
	keys := []string{"a", "zz", "dungeons", "0", "~~~~", "some key", "another key"}
	for _, k := range keys {
		h := Hashit(k)
		require.GreaterOrEqual(t, h, int32(0), "key %q", k)
	}
}
