package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHook_AppendsFormattedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scm_system.log")

	hook, err := NewFileHook(path)
	require.NoError(t, err)

	logger := log.New()
	logger.SetOutput(&strings.Builder{})
	logger.AddHook(hook)

	logger.WithField("purchase_order_id", 41).Info("транзакция заказа закоммичена")
	logger.Error("регистрация заказа не выполнена")
	require.NoError(t, hook.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "level=info")
	assert.Contains(t, lines[0], "purchase_order_id=41")
	assert.Contains(t, lines[1], "level=error")

	hook, err = NewFileHook(path)
	require.NoError(t, err)
	reopened := log.New()
	reopened.SetOutput(&strings.Builder{})
	reopened.AddHook(hook)
	reopened.Warn("ещё одна запись")
	require.NoError(t, hook.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestNewFileHook_BadPath(t *testing.T) {
	_, err := NewFileHook(filepath.Join(t.TempDir(), "missing", "dir", "scm.log"))
	require.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	prevLevel := log.GetLevel()
	prevHooks := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.StandardLogger().ReplaceHooks(prevHooks)
	})

	closer, err := SetupLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	_, err = SetupLogger(LogConfig{Level: "chatty"})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "scm_system.log")
	closer, err = SetupLogger(LogConfig{Level: "info", File: path})
	require.NoError(t, err)
	log.Info("консоль запущена")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "консоль запущена")
}

func TestFileHook_IgnoresEntriesAfterClose(t *testing.T) {
	hook, err := NewFileHook(filepath.Join(t.TempDir(), "scm.log"))
	require.NoError(t, err)
	require.NoError(t, hook.Close())
	require.NoError(t, hook.Close())

	assert.NoError(t, hook.Fire(log.NewEntry(log.New())))
}
