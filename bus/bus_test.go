package bus

import (
	"testing"

	"github.com/mohitkumar/strand/model"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus(t *testing.T) {
	b := NewMemoryBus("input")
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Write(model.NewEvent("login", "test", "input", map[string]any{"n": i}, int64(i))))
	}

	msgs, err := b.Read(2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, 0, msgs[0].Attributes["n"])
	require.Equal(t, 1, msgs[1].Attributes["n"])

	msgs, err = b.Read(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, b.Close())
	err = b.Write(model.NewEvent("login", "test", "input", nil, 4))
	var unavailable UnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.Register(NewMemoryBus("a"))
	_, ok := m.Get("a")
	require.True(t, ok)
	_, ok = m.Get("b")
	require.False(t, ok)
	require.NoError(t, m.Close())
}
