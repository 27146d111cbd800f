//go:build !tinygo

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/config"
	"rmk/firmware/storage"
	"rmk/hal"
)

func boot(t *testing.T, h *hal.Host, cfg *config.Config) *System {
	t.Helper()
	sys, err := New(h, Options{
		Config: cfg,
		MatrixPins: func(*config.Config) (outs, ins []hal.GPIOPin, err error) {
			return h.Matrix().Outputs(), h.Matrix().Inputs(), nil
		},
	})
	require.NoError(t, err)
	return sys
}

func TestConfiguredDefaultLayer(t *testing.T) {
	h, err := hal.NewHost(hal.HostOptions{Rows: 2, Cols: 2})
	require.NoError(t, err)
	defer h.Close()
	cfg := config.Default()
	cfg.Layout.DefaultLayer = 1

	st, _ := boot(t, h, cfg).Status().Get()
	assert.EqualValues(t, 1, st.DefaultLayer)
	assert.EqualValues(t, 1, st.Layer)
}

func TestStoredDefaultLayerAppliesAtBoot(t *testing.T) {
	h, err := hal.NewHost(hal.HostOptions{Rows: 2, Cols: 2})
	require.NoError(t, err)
	defer h.Close()
	cfg := config.Default()

	// First boot stamps the store for this build.
	st, _ := boot(t, h, cfg).Status().Get()
	assert.Zero(t, st.DefaultLayer)

	store, err := storage.Open(h.Flash(), cfg.StorageConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, store.PutValue(storage.KeyLayoutConfig, &storage.LayoutConfig{DefaultLayer: 1}))

	st, _ = boot(t, h, cfg).Status().Get()
	assert.EqualValues(t, 1, st.DefaultLayer)
	assert.EqualValues(t, 1, st.Layer)
	assert.False(t, st.FirstBoot)
}
