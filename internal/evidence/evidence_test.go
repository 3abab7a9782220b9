package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/renewbot/internal/config"
)

type stubScreenshotter struct {
	img []byte
	err error
}

func (s stubScreenshotter) Screenshot(context.Context) ([]byte, error) {
	return s.img, s.err
}

func newTestRecorder(t *testing.T, dir string) *Recorder {
	t.Helper()
	r, err := NewRecorder(config.EvidenceConfig{Dir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"user@example.com": "user_example_com",
		"plain123":         "plain123",
		"a b/c\\d":         "a_b_c_d",
		"ünï":              "_n_",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestCapture_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shots")
	r := newTestRecorder(t, dir)

	shot := r.Capture(context.Background(), stubScreenshotter{img: []byte("png")}, "user@example.com", "01_login_init")
	require.NotNil(t, shot)

	want := filepath.Join(dir, "user_example_com_01_login_init.png")
	assert.Equal(t, want, shot.Path)
	assert.Equal(t, "01_login_init", shot.Label)
	assert.Equal(t, 2024, shot.Taken.Year())

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestCapture_OverwritesSameLabel(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t, dir)
	ctx := context.Background()

	r.Capture(ctx, stubScreenshotter{img: []byte("first")}, "u", "error")
	shot := r.Capture(ctx, stubScreenshotter{img: []byte("second")}, "u", "error")
	require.NotNil(t, shot)

	data, err := os.ReadFile(shot.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestCapture_FailuresYieldNil(t *testing.T) {
	r := newTestRecorder(t, t.TempDir())
	ctx := context.Background()

	assert.Nil(t, r.Capture(ctx, nil, "u", "x"))
	assert.Nil(t, r.Capture(ctx, stubScreenshotter{err: errors.New("target closed")}, "u", "x"))

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	blocked := newTestRecorder(t, filepath.Join(blocker, "sub"))
	assert.Nil(t, blocked.Capture(ctx, stubScreenshotter{img: []byte("png")}, "u", "x"))
}

func TestNewRecorder_ExpandsHome(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", "/tmp/renewbot-home")
	r, err := NewRecorder(config.EvidenceConfig{Dir: "~/shots"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/renewbot-home", "shots"), r.Dir())
}
