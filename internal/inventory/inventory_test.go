package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/logger"
)

const sample = `
packages:
  - name: org.example.notes
    label: Notes
    launchable: true
    version_code: 12
  - name: com.android.providers.contacts
    system: true
    special: true
  - name: old.app
    installed: false
  - label: nameless
  - name: org.example.notes
    label: Notes 2
`

func TestParse(t *testing.T) {
	pkgs, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, pkgs, 3)

	assert.Equal(t, "com.android.providers.contacts", pkgs[0].Name)
	assert.True(t, pkgs[0].IsSystem)
	assert.True(t, pkgs[0].IsInstalled, "installed defaults to true")

	assert.Equal(t, "old.app", pkgs[1].Name)
	assert.False(t, pkgs[1].IsInstalled)

	assert.Equal(t, "org.example.notes", pkgs[2].Name)
	assert.Equal(t, "Notes 2", pkgs[2].Label, "later duplicate wins")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("packages: [oops"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	in := []domain.Package{
		{Name: "a", Label: "A", IsInstalled: true, IsLaunchable: true},
		{Name: "b", IsInstalled: false, IsSystem: true},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")

	s, err := NewSource(path, logger.Discard())
	require.NoError(t, err)
	assert.Empty(t, s.Packages(), "missing file is an empty inventory")

	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	require.NoError(t, s.Reload())
	assert.Len(t, s.Packages(), 3)

	p, ok := s.Lookup("org.example.notes")
	assert.True(t, ok)
	assert.Equal(t, "Notes 2", p.DisplayLabel())
	_, ok = s.Lookup("nope")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("packages: [oops"), 0o644))
	assert.Error(t, s.Reload())
	assert.Len(t, s.Packages(), 3, "failed reload keeps the previous snapshot")
}

func TestNewStatic(t *testing.T) {
	s := NewStatic([]domain.Package{{Name: "x", IsInstalled: true}}, logger.Discard())
	_, ok := s.Lookup("x")
	assert.True(t, ok)
	assert.NoError(t, s.Reload())
}
