package workunit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func TestBuild_OneBackupUnitPerPackage(t *testing.T) {
	s := domain.NewSchedule("Nightly")
	s.Mode = domain.ModeAPK | domain.ModeData

	units, err := Build([]string{"com.a", "com.b", "com.c"}, s, "Nightly @ now", 77)
	require.NoError(t, err)
	require.Len(t, units, 3)

	ids := map[string]bool{}
	for i, u := range units {
		assert.Equal(t, []string{"com.a", "com.b", "com.c"}[i], u.PackageName)
		assert.Equal(t, s.Mode, u.Mode)
		assert.Equal(t, domain.DirectionBackup, u.Direction)
		assert.Equal(t, "Nightly @ now", u.BatchName)
		assert.Equal(t, 77, u.NotificationID)
		assert.True(t, strings.HasPrefix(u.ID, "wu-"))
		ids[u.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestBuild_Empty(t *testing.T) {
	units, err := Build(nil, domain.NewSchedule("x"), "b", 1)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestBuildManual_Restore(t *testing.T) {
	units, err := BuildManual([]string{"com.a"}, domain.ModeAPK, domain.DirectionRestore, "restore", 2)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, domain.DirectionRestore, units[0].Direction)
}

func TestBuildManual_RejectsUnknownDirection(t *testing.T) {
	_, err := BuildManual([]string{"com.a"}, domain.ModeAPK, "sideways", "b", 1)
	assert.Error(t, err)
}
