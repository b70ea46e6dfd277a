package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"empty ring owns everything":   testEmptyRing,
		"single member owns all":       testSingleMember,
		"keys owned by exactly one":    testExactlyOneOwner,
		"leave moves keys to the rest": testLeave,
	} {
		t.Run(scenario, fn)
	}
}

func testEmptyRing(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 7})
	require.True(t, r.Owns("1:o-1"))
	require.Empty(t, r.GetPartitions())
	_, ok := r.Owner("1:o-1")
	require.False(t, ok)
}

func testSingleMember(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 7})
	require.NoError(t, r.JoinLocal("node-1", "127.0.0.1:9000"))
	for i := 0; i < 50; i++ {
		require.True(t, r.Owns(fmt.Sprintf("1:o-%d", i)))
	}
	require.Len(t, r.GetPartitions(), 7)
	require.Equal(t, []Node{{Name: "node-1", Addr: "127.0.0.1:9000"}}, r.Nodes())
}

func testExactlyOneOwner(t *testing.T) {
	r1 := NewRing(RingConfig{PartitionCount: 31})
	r2 := NewRing(RingConfig{PartitionCount: 31})
	require.NoError(t, r1.JoinLocal("node-1", "a"))
	require.NoError(t, r1.Join("node-2", "b"))
	require.NoError(t, r2.Join("node-1", "a"))
	require.NoError(t, r2.JoinLocal("node-2", "b"))

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("1:o-%d", i)
		require.NotEqual(t, r1.Owns(key), r2.Owns(key), key)
		o1, _ := r1.Owner(key)
		o2, _ := r2.Owner(key)
		require.Equal(t, o1, o2)
	}
	require.Len(t, append(r1.GetPartitions(), r2.GetPartitions()...), 31)
}

func testLeave(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 31})
	require.NoError(t, r.JoinLocal("node-1", "a"))
	require.NoError(t, r.Join("node-2", "b"))
	require.NoError(t, r.Leave("node-2"))
	for i := 0; i < 50; i++ {
		require.True(t, r.Owns(fmt.Sprintf("1:o-%d", i)))
	}
}
