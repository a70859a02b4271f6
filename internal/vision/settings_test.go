package vision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithFile(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vision_settings.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return NewStore(path)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	s := storeWithFile(t, "")
	got := s.Snapshot()
	assert.Equal(t, DefaultSettings(), got)
}

func TestUnknownKeysIgnored(t *testing.T) {
	s := storeWithFile(t, `{"min_area": 2000, "bogus_option": 42}`)
	got := s.Snapshot()
	assert.Equal(t, float32(2000), got.MinArea)
	assert.True(t, got.ShowBoxes)
}

func TestNestedObjectsMergeKeyByKey(t *testing.T) {
	s := storeWithFile(t, `{"faces": {"tolerance": 0.4}, "enabled_classes": {"dog": false}}`)
	got := s.Snapshot()

	// Overridden keys applied.
	assert.Equal(t, 0.4, got.Faces.Tolerance)
	assert.False(t, got.EnabledClasses["dog"])

	// Sibling keys retained from defaults, not wiped by the partial object.
	assert.True(t, got.Faces.Enabled)
	assert.Equal(t, 10, got.Faces.SampleEvery)
	assert.True(t, got.EnabledClasses["person"])
	assert.Equal(t, "#00E676", got.Colors["person"])
}

func TestUpdateMergesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vision_settings.json")
	s := NewStore(path)

	_, err := s.Update([]byte(`{"show_summary": false, "faces": {"enabled": false}}`))
	require.NoError(t, err)

	// Reload from disk through a fresh store.
	reloaded := NewStore(path).Snapshot()
	assert.False(t, reloaded.ShowSummary)
	assert.False(t, reloaded.Faces.Enabled)
	assert.Equal(t, 0.6, reloaded.Faces.Tolerance)
}

func TestUpdateRejectsInvalidJSON(t *testing.T) {
	s := storeWithFile(t, "")
	_, err := s.Update([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSnapshotIsolatedFromLaterUpdates(t *testing.T) {
	s := storeWithFile(t, "")
	snap := s.Snapshot()
	_, err := s.Update([]byte(`{"enabled_classes": {"person": false}}`))
	require.NoError(t, err)
	assert.True(t, snap.EnabledClasses["person"])
	assert.False(t, s.Snapshot().EnabledClasses["person"])
}
