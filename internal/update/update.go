// Package update checks GitHub releases for a newer agent-arcade build
// and can swap the running binary in place.
package update

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/config"
)

const (
	// GitHubRepo is the repository checked for releases.
	GitHubRepo = "asheshgoplani/agent-arcade"

	// CacheFileName stores the last check result under the data dir.
	CacheFileName = "update-cache.json"

	// DefaultCheckInterval is how long a cached check stays fresh.
	DefaultCheckInterval = 24 * time.Hour
)

// checkInterval is settable from config.toml [updates].
var checkInterval = DefaultCheckInterval

// SetCheckInterval overrides the cache freshness window.
func SetCheckInterval(hours int) {
	if hours > 0 {
		checkInterval = time.Duration(hours) * time.Hour
	}
}

// Release is a GitHub release as returned by the releases API.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
	Assets      []Asset   `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// checkCache is the persisted result of the last release check.
type checkCache struct {
	CheckedAt      time.Time `json:"checked_at"`
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	DownloadURL    string    `json:"download_url"`
	ReleaseURL     string    `json:"release_url"`
}

// Info describes whether a newer release exists.
type Info struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	ReleaseURL     string
}

func cachePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CacheFileName), nil
}

func loadCache() (*checkCache, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache checkCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveCache(cache *checkCache) error {
	path, err := cachePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fetchLatestRelease asks the GitHub API for the newest release.
func fetchLatestRelease() (*Release, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("parse release: %w", err)
	}
	return &release, nil
}

// assetURL returns the download URL for this platform's tarball, or ""
// when the release carries none. Release assets are named
// agent-arcade_X.Y.Z_os_arch.tar.gz.
func assetURL(release *Release) string {
	version := strings.TrimPrefix(release.TagName, "v")
	want := fmt.Sprintf("agent-arcade_%s_%s_%s.tar.gz", version, runtime.GOOS, runtime.GOARCH)

	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset.BrowserDownloadURL
		}
	}
	return ""
}

// CompareVersions compares two dotted versions, ignoring a leading "v".
// Returns -1 when v1 is older, 1 when newer, 0 when equal.
func CompareVersions(v1, v2 string) int {
	a, b := versionParts(v1), versionParts(v2)
	for i := 0; i < 3; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// versionParts parses up to three numeric components, padding missing
// ones with zero. Non-numeric trailers like "-rc1" count as zero.
func versionParts(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	var parts [3]int
	for i, s := range strings.SplitN(v, ".", 3) {
		var n int
		_, _ = fmt.Sscanf(s, "%d", &n)
		parts[i] = n
	}
	return parts
}

// CheckForUpdate reports whether a newer release exists. Without force
// it serves a cached answer while the cache is fresh, so callers on the
// happy path never wait on the network.
func CheckForUpdate(currentVersion string, force bool) (*Info, error) {
	info := &Info{CurrentVersion: currentVersion}

	if !force {
		if cache, err := loadCache(); err == nil && time.Since(cache.CheckedAt) < checkInterval {
			info.LatestVersion = cache.LatestVersion
			info.DownloadURL = cache.DownloadURL
			info.ReleaseURL = cache.ReleaseURL
			info.Available = CompareVersions(currentVersion, cache.LatestVersion) < 0
			return info, nil
		}
	}

	release, err := fetchLatestRelease()
	if err != nil {
		return info, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	downloadURL := assetURL(release)

	// Cache write failures only cost an extra check next time.
	_ = saveCache(&checkCache{
		CheckedAt:      time.Now(),
		LatestVersion:  latest,
		CurrentVersion: currentVersion,
		DownloadURL:    downloadURL,
		ReleaseURL:     release.HTMLURL,
	})

	info.LatestVersion = latest
	info.DownloadURL = downloadURL
	info.ReleaseURL = release.HTMLURL
	info.Available = CompareVersions(currentVersion, latest) < 0
	return info, nil
}

// PerformUpdate downloads the release tarball and replaces the running
// binary. The old binary is kept beside it until the swap succeeds.
func PerformUpdate(downloadURL string) error {
	if downloadURL == "" {
		return fmt.Errorf("no download available for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolve symlinks: %w", err)
	}

	fmt.Printf("Downloading %s...\n", downloadURL)
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Get(downloadURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp("", "agent-arcade-update-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmpFile, resp.Body)
	tmpFile.Close()
	if err != nil {
		return fmt.Errorf("save download: %w", err)
	}

	fmt.Println("Extracting...")
	binary, err := extractBinary(tmpPath)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// Write beside the target, then swap with renames so a failure at
	// any point leaves a working binary on disk.
	newPath := execPath + ".new"
	if err := os.WriteFile(newPath, binary, 0o755); err != nil {
		return fmt.Errorf("write new binary: %w", err)
	}

	oldPath := execPath + ".old"
	if err := os.Rename(execPath, oldPath); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("back up old binary: %w", err)
	}
	if err := os.Rename(newPath, execPath); err != nil {
		_ = os.Rename(oldPath, execPath)
		return fmt.Errorf("install new binary: %w", err)
	}
	os.Remove(oldPath)

	return nil
}

// extractBinary pulls the agent-arcade binary out of a release tarball.
func extractBinary(tarPath string) ([]byte, error) {
	file, err := os.Open(tarPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag == tar.TypeReg && header.Name == "agent-arcade" {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("agent-arcade binary not found in archive")
}

// ChangelogEntry is one version's section of CHANGELOG.md.
type ChangelogEntry struct {
	Version string
	Date    string
	Content string
}

// FetchChangelog downloads CHANGELOG.md from the repository.
func FetchChangelog() (string, error) {
	url := fmt.Sprintf("https://raw.githubusercontent.com/%s/main/CHANGELOG.md", GitHubRepo)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch changelog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch changelog: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read changelog: %w", err)
	}
	return string(data), nil
}

// ParseChangelog splits keep-a-changelog content into per-version
// entries. Version headers look like "## [0.3.1] - 2026-08-20".
func ParseChangelog(content string) []ChangelogEntry {
	var entries []ChangelogEntry
	var current *ChangelogEntry
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			entries = append(entries, *current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "## [") {
			if current != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		flush()
		rest := strings.TrimPrefix(line, "## [")
		version, tail, found := strings.Cut(rest, "]")
		if !found {
			current = nil
			continue
		}
		entry := ChangelogEntry{Version: version}
		if _, date, ok := strings.Cut(tail, " - "); ok {
			entry.Date = strings.TrimSpace(date)
		}
		current = &entry
	}
	flush()

	return entries
}

// GetChangesBetweenVersions returns the entries newer than current, up
// to and including latest.
func GetChangesBetweenVersions(entries []ChangelogEntry, currentVersion, latestVersion string) []ChangelogEntry {
	var result []ChangelogEntry
	for _, entry := range entries {
		if CompareVersions(entry.Version, currentVersion) > 0 &&
			CompareVersions(entry.Version, latestVersion) <= 0 {
			result = append(result, entry)
		}
	}
	return result
}

// FormatChangelogForDisplay renders entries for the terminal.
func FormatChangelogForDisplay(entries []ChangelogEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nWhat's new\n")

	for _, entry := range entries {
		sb.WriteString("\nv" + entry.Version)
		if entry.Date != "" {
			sb.WriteString(" (" + entry.Date + ")")
		}
		sb.WriteString("\n")

		for _, line := range strings.Split(entry.Content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.HasPrefix(line, "### ") {
				fmt.Fprintf(&sb, "\n  [%s]\n", strings.TrimPrefix(line, "### "))
				continue
			}
			fmt.Fprintf(&sb, "  %s\n", line)
		}
	}

	return sb.String()
}
