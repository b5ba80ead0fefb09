package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsWhenUnset(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.False(t, cfg.GetMultiTarget())
	assert.Equal(t, 0.2, cfg.GetMinDistanceM())
	assert.Equal(t, 5.0, cfg.GetMinSpeed())
	assert.False(t, cfg.GetEnableFiltering())
	assert.True(t, cfg.GetEnableAngle())
	assert.Equal(t, time.Second, cfg.GetIdleTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.GetOutputInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.GetFrameTimeout())
	assert.Equal(t, 5, cfg.GetMaxFramesPerCycle())
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"multi_target": true, "output_interval": "250ms"}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.GetMultiTarget())
	assert.Equal(t, 250*time.Millisecond, cfg.GetOutputInterval())
	// Unset fields keep their defaults.
	assert.Equal(t, 0.2, cfg.GetMinDistanceM())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("negative distance", func(t *testing.T) {
		path := writeConfig(t, `{"min_distance_m": -1}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "min_distance_m")
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfig(t, `{"frame_timeout": "soon"}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "frame_timeout")
	})

	t.Run("zero frames per cycle", func(t *testing.T) {
		path := writeConfig(t, `{"max_frames_per_cycle": 0}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "max_frames_per_cycle")
	})
}

func TestMergeOverlaysOnlySetFields(t *testing.T) {
	multi := true
	dist := 0.5
	base := &TuningConfig{MultiTarget: &multi}

	interval := "300ms"
	merged := base.Merge(&TuningConfig{MinDistanceM: &dist, OutputInterval: &interval})

	assert.True(t, merged.GetMultiTarget())
	assert.Equal(t, 0.5, merged.GetMinDistanceM())
	assert.Equal(t, 300*time.Millisecond, merged.GetOutputInterval())

	// Base config is not mutated.
	assert.Nil(t, base.MinDistanceM)

	assert.Equal(t, base.GetMinSpeed(), merged.GetMinSpeed())

	mergedNil := base.Merge(nil)
	assert.True(t, mergedNil.GetMultiTarget())
}
