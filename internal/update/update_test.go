package update

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name   string
		v1, v2 string
		want   int
	}{
		{"equal versions", "1.0.0", "1.0.0", 0},
		{"v1 less than v2", "1.0.0", "1.0.1", -1},
		{"v1 greater than v2", "2.0.0", "1.9.9", 1},
		{"with v prefix", "v1.2.3", "v1.2.3", 0},
		{"mixed prefix", "v1.0.0", "1.0.1", -1},
		{"minor difference", "0.2.9", "0.3.0", -1},
		{"patch difference", "0.3.0", "0.3.1", -1},
		{"two-part version padded", "1.0", "1.0.0", 0},
		{"single-part version", "2", "1.9.9", 1},
		{"prerelease trailer counts as zero", "1.0.0-rc1", "1.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.v1, tt.v2))
		})
	}
}

func TestAssetURL(t *testing.T) {
	want := fmt.Sprintf("agent-arcade_0.3.1_%s_%s.tar.gz", runtime.GOOS, runtime.GOARCH)
	release := &Release{
		TagName: "v0.3.1",
		Assets: []Asset{
			{Name: "agent-arcade_0.3.1_plan9_mips.tar.gz", BrowserDownloadURL: "https://example.com/wrong"},
			{Name: want, BrowserDownloadURL: "https://example.com/right"},
		},
	}

	assert.Equal(t, "https://example.com/right", assetURL(release))

	release.Assets = release.Assets[:1]
	assert.Empty(t, assetURL(release), "no matching asset means no URL")
}

func TestCheckForUpdateUsesFreshCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// A fresh cache answers without touching the network.
	require.NoError(t, saveCache(&checkCache{
		CheckedAt:     time.Now(),
		LatestVersion: "9.9.9",
		DownloadURL:   "https://example.com/dl",
		ReleaseURL:    "https://example.com/rel",
	}))

	info, err := CheckForUpdate("0.3.0", false)
	require.NoError(t, err)
	assert.True(t, info.Available)
	assert.Equal(t, "0.3.0", info.CurrentVersion)
	assert.Equal(t, "9.9.9", info.LatestVersion)
	assert.Equal(t, "https://example.com/dl", info.DownloadURL)
}

func TestCheckForUpdateCachedUpToDate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, saveCache(&checkCache{
		CheckedAt:     time.Now(),
		LatestVersion: "0.3.0",
	}))

	info, err := CheckForUpdate("0.3.0", false)
	require.NoError(t, err)
	assert.False(t, info.Available)
}

func TestCacheRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	saved := &checkCache{
		CheckedAt:      time.Now().Truncate(time.Second),
		LatestVersion:  "0.4.0",
		CurrentVersion: "0.3.0",
		DownloadURL:    "https://example.com/dl",
		ReleaseURL:     "https://example.com/rel",
	}
	require.NoError(t, saveCache(saved))

	loaded, err := loadCache()
	require.NoError(t, err)
	assert.Equal(t, saved.LatestVersion, loaded.LatestVersion)
	assert.Equal(t, saved.DownloadURL, loaded.DownloadURL)
	assert.True(t, saved.CheckedAt.Equal(loaded.CheckedAt))
}

func TestSetCheckInterval(t *testing.T) {
	t.Cleanup(func() { checkInterval = DefaultCheckInterval })

	SetCheckInterval(6)
	assert.Equal(t, 6*time.Hour, checkInterval)

	// Zero and negative keep the previous value.
	SetCheckInterval(0)
	assert.Equal(t, 6*time.Hour, checkInterval)
	SetCheckInterval(-1)
	assert.Equal(t, 6*time.Hour, checkInterval)
}

func TestParseChangelog(t *testing.T) {
	content := `# Changelog

## [0.3.1] - 2026-08-20

### Fixed
- Fix flash staying on after detach

### Added
- Game window status line

## [0.3.0] - 2026-08-10

### Fixed
- Fix ready detection race
`

	entries := ParseChangelog(content)
	require.Len(t, entries, 2)

	assert.Equal(t, "0.3.1", entries[0].Version)
	assert.Equal(t, "2026-08-20", entries[0].Date)
	assert.Contains(t, entries[0].Content, "Fix flash staying on after detach")
	assert.Contains(t, entries[0].Content, "Game window status line")

	assert.Equal(t, "0.3.0", entries[1].Version)
	assert.Equal(t, "2026-08-10", entries[1].Date)
	assert.Contains(t, entries[1].Content, "Fix ready detection race")
}

func TestParseChangelogEmpty(t *testing.T) {
	assert.Empty(t, ParseChangelog(""))
	assert.Empty(t, ParseChangelog("Just some text\nwithout version headers\n"))
}

func TestGetChangesBetweenVersions(t *testing.T) {
	entries := []ChangelogEntry{
		{Version: "0.3.1", Date: "2026-08-20", Content: "latest changes"},
		{Version: "0.3.0", Date: "2026-08-10", Content: "middle changes"},
		{Version: "0.2.9", Date: "2026-08-01", Content: "old changes"},
	}

	tests := []struct {
		name      string
		current   string
		latest    string
		wantCount int
		wantFirst string
	}{
		{"one version behind", "0.3.0", "0.3.1", 1, "0.3.1"},
		{"two versions behind", "0.2.9", "0.3.1", 2, "0.3.1"},
		{"up to date", "0.3.1", "0.3.1", 0, ""},
		{"with v prefix", "v0.2.9", "v0.3.1", 2, "0.3.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetChangesBetweenVersions(entries, tt.current, tt.latest)
			assert.Len(t, result, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantFirst, result[0].Version)
			}
		})
	}
}

func TestFormatChangelogForDisplay(t *testing.T) {
	t.Run("empty entries", func(t *testing.T) {
		assert.Empty(t, FormatChangelogForDisplay(nil))
	})

	t.Run("sections and bullets", func(t *testing.T) {
		entries := []ChangelogEntry{
			{
				Version: "0.3.1",
				Date:    "2026-08-20",
				Content: "### Fixed\n- Bug fix one\n- Bug fix two\n\n### Added\n- New feature",
			},
		}
		result := FormatChangelogForDisplay(entries)
		assert.Contains(t, result, "v0.3.1")
		assert.Contains(t, result, "2026-08-20")
		assert.Contains(t, result, "[Fixed]")
		assert.Contains(t, result, "- Bug fix one")
		assert.Contains(t, result, "- Bug fix two")
		assert.Contains(t, result, "[Added]")
		assert.Contains(t, result, "- New feature")
	})

	t.Run("keeps plain text lines", func(t *testing.T) {
		entries := []ChangelogEntry{
			{Version: "1.0.0", Content: "### Changed\n- Item one\nSome plain text line"},
		}
		result := FormatChangelogForDisplay(entries)
		assert.Contains(t, result, "Some plain text line")
	})

	t.Run("version without date", func(t *testing.T) {
		entries := []ChangelogEntry{
			{Version: "0.1.0", Content: "- Initial release"},
		}
		result := FormatChangelogForDisplay(entries)
		assert.Contains(t, result, "v0.1.0")
		assert.NotContains(t, result, "()")
	})
}
