package bloom

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongrel/internal/document"
)

func TestFilter_AddThenTestIsAlwaysTrue(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		v := document.Scalar{V: int64(i)}
		f.AddValue(v)
		require.True(t, f.TestValue(v), "value %d", i)
	}
}

func TestFilter_DisjointProbeStaysWithinTarget(t *testing.T) {
	const n = 10000
	f := New(n, 1e-9)
	for i := 0; i < n; i++ {
		f.Add([]byte("in-" + strconv.Itoa(i)))
	}

	wrong := 0
	for i := 0; i < n; i++ {
		if f.Test([]byte("out-" + strconv.Itoa(i))) {
			wrong++
		}
	}
	// 1e-9 over 10k probes: any hit at all would be far outside the target.
	assert.Zero(t, wrong)
}

func TestFilter_TestAndAddReportsPriorMembership(t *testing.T) {
	f := New(10, 0)
	assert.False(t, f.TestAndAdd([]byte("a")))
	assert.True(t, f.TestAndAdd([]byte("a")))
	assert.False(t, f.TestAndAddValue(document.Scalar{V: "a"}), "tagged encoding differs from raw bytes")
	assert.True(t, f.TestAndAddValue(document.Scalar{V: "a"}))
}

func TestFilter_DistinguishesScalarTypes(t *testing.T) {
	f := New(10, 1e-9)
	f.AddValue(document.Scalar{V: int64(1)})
	assert.False(t, f.TestValue(document.Scalar{V: "1"}))
}

func TestFilter_DeterministicForSameInput(t *testing.T) {
	a := New(500, 1e-6)
	b := New(500, 1e-6)
	require.Equal(t, a.Bits(), b.Bits())
	require.Equal(t, a.Hashes(), b.Hashes())

	for i := 0; i < 500; i++ {
		a.Add([]byte(strconv.Itoa(i)))
		b.Add([]byte(strconv.Itoa(i)))
	}
	for i := 0; i < 2000; i++ {
		probe := []byte("p" + strconv.Itoa(i))
		assert.Equal(t, a.Test(probe), b.Test(probe))
	}
}

func TestNew_Defaults(t *testing.T) {
	f := New(0, 2)
	assert.Equal(t, uint(1), f.Expected())
	assert.Equal(t, DefaultFalsePositive, f.FalsePositive())
	assert.Positive(t, f.Bits())
	assert.Positive(t, f.Hashes())
}
