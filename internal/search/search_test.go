package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// setupTestIndex creates a temporary search index for testing.
func setupTestIndex(t *testing.T) (*SearchIndex, string) {
	t.Helper()

	dir := t.TempDir()
	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	return index, dir
}

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func backup(pkg string, daysAgo int, size int64) domain.BackupRecord {
	return domain.BackupRecord{
		PackageName: pkg,
		BackupDate:  base.AddDate(0, 0, -daysAgo),
		Size:        size,
		HasAPK:      true,
		HasAppData:  true,
	}
}

func seedIndex(t *testing.T, index *SearchIndex) {
	t.Helper()

	docs := []*SearchDocument{
		PackageToSearchDocument("org.mozilla.firefox",
			domain.Package{Name: "org.mozilla.firefox", Label: "Firefox", IsInstalled: true},
			[]domain.BackupRecord{backup("org.mozilla.firefox", 1, 100), backup("org.mozilla.firefox", 3, 90)},
			&domain.AppExtras{CustomTags: []string{"browser"}, Note: "keep bookmarks"}),
		PackageToSearchDocument("com.android.chrome",
			domain.Package{Name: "com.android.chrome", Label: "Chrome", IsSystem: true, IsInstalled: true},
			[]domain.BackupRecord{backup("com.android.chrome", 40, 500)},
			&domain.AppExtras{CustomTags: []string{"browser"}}),
		PackageToSearchDocument("com.whatsapp",
			domain.Package{Name: "com.whatsapp", Label: "WhatsApp", IsInstalled: true},
			nil, nil),
		PackageToSearchDocument("com.old.game",
			domain.Package{},
			[]domain.BackupRecord{backup("com.old.game", 90, 10)},
			nil),
	}
	require.NoError(t, index.IndexDocuments(docs))
}

func ids(res *SearchResult) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.ID
	}
	return out
}

func TestNewSearchIndex(t *testing.T) {
	index, _ := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_IndexAndDelete(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	require.NoError(t, index.DeleteDocument("com.whatsapp"))
	require.NoError(t, index.DeleteDocuments([]string{"com.old.game"}))

	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSearch_ByLabel(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)

	params := DefaultSearchParams()
	params.Query = "firefox"
	res, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "org.mozilla.firefox", res.Hits[0].ID)
	assert.Equal(t, "Firefox", res.Hits[0].Label)
	assert.Equal(t, 2, res.Hits[0].BackupCount)
	assert.Equal(t, int64(190), res.Hits[0].TotalSize)
}

func TestSearch_ByPackageNameAndNote(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "mozilla"})
	require.NoError(t, err)
	assert.Contains(t, ids(res), "org.mozilla.firefox")

	res, err = index.Search(context.Background(), SearchParams{Query: "bookmarks"})
	require.NoError(t, err)
	assert.Equal(t, []string{"org.mozilla.firefox"}, ids(res))
}

func TestSearch_Filters(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)
	ctx := context.Background()

	tests := []struct {
		name   string
		params SearchParams
		want   []string
	}{
		{"by kind", SearchParams{Kinds: []Kind{KindSystem}}, []string{"com.android.chrome"}},
		{"by tag", SearchParams{Tags: []string{"browser"}, SortBy: "label"}, []string{"com.android.chrome", "org.mozilla.firefox"}},
		{"installed only", SearchParams{InstalledOnly: true, Tags: []string{"browser"}, SortBy: "size"}, []string{"com.android.chrome", "org.mozilla.firefox"}},
		{"older than", SearchParams{OlderThan: base.AddDate(0, 0, -30), SortBy: "latest"}, []string{"com.android.chrome", "com.old.game"}},
		{"min backups", SearchParams{MinBackups: 2}, []string{"org.mozilla.firefox"}},
		{"category", SearchParams{Category: "data", SortBy: "latest", SortOrder: "asc"}, []string{"com.old.game", "com.android.chrome", "org.mozilla.firefox"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := index.Search(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res))
		})
	}
}

func TestSearch_Facets(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)

	res, err := index.Search(context.Background(), DefaultSearchParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Total)

	kinds := map[string]int{}
	for _, f := range res.Facets.Kinds {
		kinds[f.Value] = f.Count
	}
	assert.Equal(t, map[string]int{"user": 3, "system": 1}, kinds)
	require.NotEmpty(t, res.Facets.Tags)
	assert.Equal(t, FacetCount{Value: "browser", Count: 2}, res.Facets.Tags[0])
}

func TestSearchIndex_Rebuild(t *testing.T) {
	index, _ := setupTestIndex(t)
	seedIndex(t, index)

	require.NoError(t, index.Rebuild())

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_Persistence(t *testing.T) {
	dir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	seedIndex(t, index)
	require.NoError(t, index.Close())

	reopened, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestPackageToSearchDocument(t *testing.T) {
	doc := PackageToSearchDocument("com.old.game", domain.Package{},
		[]domain.BackupRecord{{PackageName: "com.old.game", PackageLabel: "Old Game", BackupDate: base, VersionName: "1.2", HasAPK: true}},
		nil)

	assert.Equal(t, "com.old.game", doc.ID)
	assert.Equal(t, KindUser, doc.Kind)
	assert.Equal(t, "Old Game", doc.Label)
	assert.Equal(t, "com old game", doc.Name)
	assert.Equal(t, "1.2", doc.VersionName)
	assert.Equal(t, []string{"apk"}, doc.Categories)
	assert.False(t, doc.Installed)
	assert.Equal(t, base.UnixMilli(), doc.LatestBackup)

	bare := PackageToSearchDocument("com.none", domain.Package{IsSpecial: true}, nil, nil)
	assert.Equal(t, "com.none", bare.Label)
	assert.Equal(t, KindSpecial, bare.Kind)
	assert.NotContains(t, bare.ToMap(), "latest_backup")
}
