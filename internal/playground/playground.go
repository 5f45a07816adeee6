// Package playground manages dated scratch folders for throwaway plays.
//
// An area is a directory like 2026-08-23-redis-cache under the
// configured base directory. `try` resolves names by fuzzy match and
// creates a folder on miss, so "agent-arcade try redis" lands in the
// same area tomorrow.
package playground

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Area is one playground folder.
type Area struct {
	Name    string    // display name, date prefix stripped
	Path    string    // full directory path
	Date    time.Time // parsed from the folder name when prefixed
	HasDate bool
	ModTime time.Time
}

// List returns the areas under dir, most recently touched first. A
// missing base directory is an empty playground, not an error.
func List(dir string) ([]Area, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Area{}, nil
		}
		return nil, err
	}

	var areas []Area
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		area := Area{
			Name: name,
			Path: filepath.Join(dir, name),
		}
		if date, rest, ok := splitDatePrefix(name); ok {
			area.Date = date
			area.HasDate = true
			area.Name = rest
		}
		if info, err := entry.Info(); err == nil {
			area.ModTime = info.ModTime()
		}

		areas = append(areas, area)
	}

	sort.Slice(areas, func(i, j int) bool {
		return areas[i].ModTime.After(areas[j].ModTime)
	})
	return areas, nil
}

// splitDatePrefix parses a YYYY-MM-DD- folder name prefix.
func splitDatePrefix(name string) (time.Time, string, bool) {
	if len(name) < 11 || name[4] != '-' || name[7] != '-' || name[10] != '-' {
		return time.Time{}, "", false
	}
	date, err := time.Parse("2006-01-02", name[:10])
	if err != nil {
		return time.Time{}, "", false
	}
	return date, name[11:], true
}

// areaSource adapts a slice of areas for fuzzy matching on names.
type areaSource []Area

func (s areaSource) String(i int) string { return s[i].Name }
func (s areaSource) Len() int            { return len(s) }

// FuzzyFind returns the areas matching query, best first. An empty
// query matches everything.
func FuzzyFind(areas []Area, query string) []Area {
	if query == "" {
		return areas
	}

	matches := fuzzy.FindFrom(query, areaSource(areas))
	results := make([]Area, 0, len(matches))
	for _, match := range matches {
		results = append(results, areas[match.Index])
	}
	return results
}

// FindExact returns the area whose name equals name, case-insensitively.
func FindExact(areas []Area, name string) (Area, bool) {
	for _, area := range areas {
		if strings.EqualFold(area.Name, name) {
			return area, true
		}
	}
	return Area{}, false
}

// Create makes a new area folder. With datePrefix the folder gets a
// YYYY-MM-DD- prefix; name collisions get a numeric suffix.
func Create(baseDir, name string, datePrefix bool) (Area, error) {
	name = strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	folder := name
	if datePrefix {
		folder = time.Now().Format("2006-01-02") + "-" + name
	}

	target := filepath.Join(baseDir, folder)
	for suffix := 2; ; suffix++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		if suffix > 100 {
			return Area{}, fmt.Errorf("too many areas named %q", name)
		}
		target = filepath.Join(baseDir, fmt.Sprintf("%s-%d", folder, suffix))
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return Area{}, fmt.Errorf("create area directory: %w", err)
	}

	// Name the area the way List would read it back.
	base := filepath.Base(target)
	area := Area{
		Name:    base,
		Path:    target,
		ModTime: time.Now(),
	}
	if date, rest, ok := splitDatePrefix(base); ok {
		area.Date = date
		area.HasDate = true
		area.Name = rest
	}
	return area, nil
}

// FindOrCreate resolves query to an existing area or creates a new one.
// Resolution order: exact name match, then a fuzzy match when it is
// unambiguous (exactly one hit), then a fresh folder. Returns the area
// and whether it was created.
func FindOrCreate(baseDir, query string, datePrefix bool) (Area, bool, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return Area{}, false, fmt.Errorf("create playground directory: %w", err)
	}

	areas, err := List(baseDir)
	if err != nil {
		return Area{}, false, err
	}

	if area, ok := FindExact(areas, query); ok {
		return area, false, nil
	}

	if matches := FuzzyFind(areas, query); len(matches) == 1 {
		return matches[0], false, nil
	}

	area, err := Create(baseDir, query, datePrefix)
	if err != nil {
		return Area{}, false, err
	}
	return area, true, nil
}
