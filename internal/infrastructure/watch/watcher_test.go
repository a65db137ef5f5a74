package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemPredict/internal/infrastructure/storage/local"
	"github.com/turtacn/ChemPredict/internal/testutil"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const classifier = "chemistry_model_v2.json"

func startWatcher(t *testing.T, dir string, reload ReloadFunc) *ArtifactWatcher {
	t.Helper()
	w, err := NewArtifactWatcher(dir, []string{classifier, "label_encoders.json"}, reload,
		Options{Debounce: 30 * time.Millisecond}, testutil.NewMockLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
		<-done
	})
	// Give Run a moment to enter its loop.
	time.Sleep(20 * time.Millisecond)
	return w
}

func TestArtifactWatcher_ReloadsOnSave(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	store := local.New(dir, nil)
	require.NoError(t, store.Put(context.Background(), "label_encoders.json", []byte("{}")))
	require.NoError(t, store.Put(context.Background(), classifier, []byte("{}")))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "one save burst triggers one reload")
}

func TestArtifactWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestArtifactWatcher_ReloadErrorIsLogged(t *testing.T) {
	dir := t.TempDir()
	log := testutil.NewMockLogger()
	w, err := NewArtifactWatcher(dir, []string{classifier}, func(context.Context) error {
		return errors.ArtifactMissing(classifier)
	}, Options{Debounce: 10 * time.Millisecond}, log)
	require.NoError(t, err)
	defer w.Close()

	w.fire(context.Background(), []string{classifier, classifier})
	assert.Equal(t, 1, w.Reloads())
	assert.True(t, log.HasMessage("info", "model artifact changed"))
	assert.True(t, log.HasMessage("warn", "model reload failed"))
}

func TestArtifactWatcher_AlreadyRunning(t *testing.T) {
	w := startWatcher(t, t.TempDir(), func(context.Context) error { return nil })
	err := w.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestNewArtifactWatcher_Validation(t *testing.T) {
	_, err := NewArtifactWatcher(t.TempDir(), []string{classifier}, nil, Options{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = NewArtifactWatcher(t.TempDir(), nil, func(context.Context) error { return nil }, Options{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewArtifactWatcher_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	w, err := NewArtifactWatcher(dir, []string{classifier}, func(context.Context) error { return nil }, Options{}, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.DirExists(t, dir)
	assert.Equal(t, dir, w.Dir())
}

func TestRelevant(t *testing.T) {
	w := &ArtifactWatcher{names: map[string]struct{}{classifier: {}}}
	assert.True(t, w.relevant(fsnotify.Event{Name: "/m/" + classifier, Op: fsnotify.Create}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/m/" + classifier, Op: fsnotify.Write}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/m/" + classifier, Op: fsnotify.Remove}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/m/." + classifier + ".123", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/m/other.json", Op: fsnotify.Write}))
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedup([]string{"a", "b", "a"}))
}
