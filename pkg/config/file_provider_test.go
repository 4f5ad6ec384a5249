package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionConfig(region string) string {
	return "account:\n  endpoint: https://localhost:8081/\n  key: k\napplication:\n  region: \"" + region + "\"\n"
}

func buildRegion(cfg *ClientConfiguration) (string, error) {
	return cfg.ApplicationRegion, nil
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, regionConfig("East US"))

	w, err := NewWatcher(path, buildRegion, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "East US", w.Current())
	updates := w.Subscribe()
	assert.Equal(t, "East US", <-updates)

	require.NoError(t, os.WriteFile(path, []byte(regionConfig("West US")), 0o600))

	require.Eventually(t, func() bool {
		return w.Current() == "West US"
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case got := <-updates:
		assert.Equal(t, "West US", got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the reloaded value")
	}
}

func TestWatcher_KeepsPreviousOnInvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, regionConfig("East US"))

	w, err := NewWatcher(path, buildRegion, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("account: ["), 0o600))
	require.Error(t, w.Reload())
	assert.Equal(t, "East US", w.Current())
}

func TestWatcher_KeepsPreviousOnBuildFailure(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, regionConfig("East US"))

	var failing atomic.Bool
	w, err := NewWatcher(path, func(cfg *ClientConfiguration) (string, error) {
		if failing.Load() {
			return "", errors.New("build failed")
		}
		return cfg.ApplicationRegion, nil
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	failing.Store(true)
	require.NoError(t, os.WriteFile(path, []byte(regionConfig("West US")), 0o600))
	assert.EqualError(t, w.Reload(), "build failed")
	assert.Equal(t, "East US", w.Current())
}

func TestWatcher_InitialLoadMustSucceed(t *testing.T) {
	clearEnv(t)
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), buildRegion, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewWatcher[string](writeConfig(t, regionConfig("x")), nil, nil)
	assert.Error(t, err)
}

func TestWatcher_Close(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, regionConfig("East US"))

	w, err := NewWatcher(path, buildRegion, nil)
	require.NoError(t, err)

	updates := w.Subscribe()
	<-updates

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, open := <-updates
	assert.False(t, open)
	assert.ErrorIs(t, w.Reload(), ErrWatcherClosed)

	late := w.Subscribe()
	assert.Equal(t, "East US", <-late)
	_, open = <-late
	assert.False(t, open)
}
