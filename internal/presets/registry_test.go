package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/backtest"
)

const presetsYAML = `presets:
  tight_momentum:
    strategy: momentum
    description: earlier entries, closer trail
    params:
      adx_entry: 25
      trail_atr: 1.5
  default_ensemble:
    strategy: ensemble
`

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveAppliesOverrides(t *testing.T) {
	r, err := NewRegistry(writeFile(t, t.TempDir(), presetsYAML))
	require.NoError(t, err)

	got, err := r.Resolve("tight_momentum")
	require.NoError(t, err)
	assert.Equal(t, backtest.StrategyMomentum, got.Strategy)
	assert.Equal(t, 25.0, got.Params.ADXEntry)
	assert.Equal(t, 1.5, got.Params.TrailATR)
	assert.Equal(t, backtest.DefaultParams().ADXExit, got.Params.ADXExit)

	plain, err := r.Resolve("default_ensemble")
	require.NoError(t, err)
	assert.Equal(t, backtest.DefaultParams(), plain.Params)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownPreset)

	snap := r.Snapshot()
	assert.EqualValues(t, 1, snap.Version)
	assert.Equal(t, []string{"default_ensemble", "tight_momentum"}, snap.IDs())
}

func TestRejectsInvalidPresets(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "presets:\n  a:\n    strategy: momentum\n    params:\n      adx_entryy: 1\n",
		"negative":         "presets:\n  a:\n    strategy: momentum\n    params:\n      adx_entry: -3\n",
		"wrong type":       "presets:\n  a:\n    strategy: momentum\n    params:\n      cooldown: 1.5\n",
		"unknown strategy": "presets:\n  a:\n    strategy: grid\n",
		"unknown field":    "presets:\n  a:\n    strategy: momentum\n    leverage: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(writeFile(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestFailedReloadKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, presetsYAML)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	writeFile(t, dir, "presets:\n  a:\n    strategy: grid\n")
	assert.Error(t, r.Reload())
	_, err = r.Resolve("tight_momentum")
	assert.NoError(t, err)

	writeFile(t, dir, "presets:\n  only:\n    strategy: mean_reversion\n    params:\n      max_hold_bars: 12\n")
	require.NoError(t, r.Reload())
	got, err := r.Resolve("only")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Params.MaxHoldBars)
	_, err = r.Resolve("tight_momentum")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestResolveOnKeepsCallerSettings(t *testing.T) {
	r, err := NewRegistry(writeFile(t, t.TempDir(), presetsYAML))
	require.NoError(t, err)

	base := backtest.DefaultParams()
	base.InitialBalance = 2500
	base.CommissionRate = 0.001

	got, err := r.ResolveOn("tight_momentum", base)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, got.Params.InitialBalance)
	assert.Equal(t, 0.001, got.Params.CommissionRate)
	assert.Equal(t, 25.0, got.Params.ADXEntry)

	_, err = r.ResolveOn("missing", base)
	assert.ErrorIs(t, err, ErrUnknownPreset)
}
