package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCopiesInputs(t *testing.T) {
	props := map[string]string{"k": "v"}
	content := []byte{0x01, 0x02}
	m := New(props, content)

	props["k"] = "mutated"
	content[0] = 0xFF

	v, ok := m.Property("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.Equal(t, []byte{0x01, 0x02}, m.Content())
}

func TestCloneEqual(t *testing.T) {
	m := New(map[string]string{"k": "v"}, []byte{0x01, 0x02})
	clone := m.Clone()
	require.True(t, m.Equal(clone))
	require.True(t, clone.Equal(m))
}

func TestMarshalRoundTrip(t *testing.T) {
	m := New(map[string]string{"k": "v", "type": "event"}, []byte{0x01, 0x02, 0x03})

	data, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	require.True(t, m.Equal(decoded))
}

func TestEqualDetectsDifference(t *testing.T) {
	a := New(map[string]string{"k": "v"}, []byte{0x01})
	b := New(map[string]string{"k": "other"}, []byte{0x01})
	require.False(t, a.Equal(b))

	c := New(map[string]string{"k": "v"}, []byte{0x02})
	require.False(t, a.Equal(c))
}

func TestPropertiesReturnsCopy(t *testing.T) {
	m := New(map[string]string{"k": "v"}, nil)
	props := m.Properties()
	props["k"] = "mutated"

	v, _ := m.Property("k")
	require.Equal(t, "v", v)
}
