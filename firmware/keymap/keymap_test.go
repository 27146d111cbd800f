package keymap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	"rmk/firmware/event"
)

func layout(t *testing.T, cells ...[]string) [][][]action.KeyAction {
	t.Helper()
	var out [][][]action.KeyAction
	for _, layer := range cells {
		row := make([]action.KeyAction, len(layer))
		for i, s := range layer {
			row[i] = action.MustParse(s)
		}
		out = append(out, [][]action.KeyAction{row})
	}
	return out
}

func TestResolveTransparency(t *testing.T) {
	km, err := FromLayers(layout(t,
		[]string{"A", "B", "C"},
		[]string{"_", "X", "_"},
		[]string{"_", "_", "Y"},
	), 0)
	require.NoError(t, err)
	require.NoError(t, km.Validate())

	s := NewLayerStack(0, nil)
	a, l := km.Resolve(s, event.KeyPosition{Col: 1})
	assert.Equal(t, "B", a.String())
	assert.Equal(t, uint8(0), l)

	s.Activate(1)
	s.Activate(2)
	a, _ = km.Resolve(s, event.KeyPosition{Col: 0})
	assert.Equal(t, "A", a.String())
	a, l = km.Resolve(s, event.KeyPosition{Col: 1})
	assert.Equal(t, "X", a.String())
	assert.Equal(t, uint8(1), l)
	a, _ = km.Resolve(s, event.KeyPosition{Col: 2})
	assert.Equal(t, "Y", a.String())

	a, _ = km.Resolve(s, event.KeyPosition{Row: 5})
	assert.Equal(t, action.NoKey, a)
}

func TestValidateRejectsTransparentBase(t *testing.T) {
	km, err := FromLayers(layout(t, []string{"A", "_"}), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, km.Validate(), ErrTransparent)
}

func TestLayerStackHoldsAndToggles(t *testing.T) {
	s := NewLayerStack(0, nil)
	s.Activate(1)
	s.Activate(1)
	s.Deactivate(1)
	assert.True(t, s.Active(1))
	s.Deactivate(1)
	assert.False(t, s.Active(1))

	s.Toggle(2)
	assert.Equal(t, uint8(2), s.Highest())
	s.Toggle(2)
	assert.Equal(t, uint8(0), s.Highest())

	s.Activate(3)
	s.Only(1)
	assert.Equal(t, uint32(0b11), s.Mask())

	s.SetDefault(2)
	assert.True(t, s.Active(2))
	assert.True(t, s.Active(0))
}

func TestTriLayer(t *testing.T) {
	s := NewLayerStack(0, &TriLayer{Lower: 1, Upper: 2, Adjust: 3})
	s.Activate(1)
	assert.False(t, s.Active(3))
	s.Activate(2)
	assert.True(t, s.Active(3))
	s.Deactivate(1)
	assert.False(t, s.Active(3))
}

func TestEncoderMap(t *testing.T) {
	km, err := New(1, 1, 2, 1)
	require.NoError(t, err)
	require.NoError(t, km.SetEncoder(0, 0, EncoderAction{
		Clockwise:        action.MustParse("AudioVolUp"),
		CounterClockwise: action.MustParse("AudioVolDown"),
	}))
	require.NoError(t, km.SetEncoder(1, 0, EncoderAction{
		Clockwise:        action.TransparentKey,
		CounterClockwise: action.MustParse("B"),
	}))
	s := NewLayerStack(0, nil)
	s.Activate(1)
	assert.Equal(t, action.MustParse("AudioVolUp"), km.ResolveEncoder(s, 0, event.Clockwise))
	assert.Equal(t, action.MustParse("B"), km.ResolveEncoder(s, 0, event.CounterClockwise))
	assert.ErrorIs(t, km.SetEncoder(2, 0, EncoderAction{}), ErrBounds)
}

func TestConcurrentSetGet(t *testing.T) {
	km, err := New(1, 1, 1, 0)
	require.NoError(t, err)
	a := action.MustParse("A")
	b := action.MustParse("LT(1, B)")
	require.NoError(t, km.Set(0, 0, 0, a))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				_ = km.Set(0, 0, 0, b)
			} else {
				_ = km.Set(0, 0, 0, a)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			got := km.Get(0, 0, 0)
			if got != a && got != b {
				t.Errorf("torn read: %v", got)
				return
			}
		}
	}()
	wg.Wait()
}
