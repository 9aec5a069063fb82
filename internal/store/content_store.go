// Package store persists content items on durable storage. A set's presence
// here is the only source of truth for "done": nothing about job completion
// is kept in memory, so a crashed or partially-failed run can always be
// diffed against the expected set range and resumed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reelforge/api/internal/model"
)

// ErrNotFound is returned when a content item has never been created.
var ErrNotFound = errors.New("content item not found")

// ContentStore defines persistence for content items and their sets.
type ContentStore interface {
	SaveMetadata(ctx context.Context, item *model.ContentItem) error
	LoadMetadata(ctx context.Context, contentType model.ContentType, title string) (*model.ContentItem, error)
	SaveSet(ctx context.Context, contentType model.ContentType, title string, set *model.Set) error
	LoadSet(ctx context.Context, contentType model.ContentType, title string, setNumber int) (*model.Set, error)
	ListExistingSets(ctx context.Context, contentType model.ContentType, title string) ([]int, error)
	MissingSets(ctx context.Context, contentType model.ContentType, title string, totalSegments, segmentsPerSet int) ([]int, error)
	Delete(ctx context.Context, contentType model.ContentType, title string) error
}

// FSStore implements ContentStore on the local filesystem. Layout:
//
//	<root>/<type>/<sanitized title>/item.json
//	<root>/<type>/<sanitized title>/set_001.json
//
// Every call reads the latest on-disk state; there is no cache layer. Job
// sizes are small enough that correctness wins over raw speed here.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// SaveMetadata persists the item document. It is written once at item
// creation; the character roster and totals inside must never change
// afterwards.
func (s *FSStore) SaveMetadata(ctx context.Context, item *model.ContentItem) error {
	dir := s.itemDir(item.ContentType, item.Title)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create item dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, "item.json"), item)
}

// LoadMetadata returns the item document, or ErrNotFound if the item was
// never created.
func (s *FSStore) LoadMetadata(ctx context.Context, contentType model.ContentType, title string) (*model.ContentItem, error) {
	path := filepath.Join(s.itemDir(contentType, title), "item.json")
	var item model.ContentItem
	if err := readJSON(path, &item); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, contentType, title)
		}
		return nil, err
	}
	return &item, nil
}

// SaveSet persists one set record. Overwrites are idempotent: a retried set
// replaces the record at the same index, it never appends a duplicate.
func (s *FSStore) SaveSet(ctx context.Context, contentType model.ContentType, title string, set *model.Set) error {
	if set.SetNumber < 1 {
		return fmt.Errorf("invalid set number %d", set.SetNumber)
	}
	dir := s.itemDir(contentType, title)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create item dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, setFileName(set.SetNumber)), set)
}

// LoadSet returns one persisted set record.
func (s *FSStore) LoadSet(ctx context.Context, contentType model.ContentType, title string, setNumber int) (*model.Set, error) {
	path := filepath.Join(s.itemDir(contentType, title), setFileName(setNumber))
	var set model.Set
	if err := readJSON(path, &set); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s set %d", ErrNotFound, contentType, title, setNumber)
		}
		return nil, err
	}
	return &set, nil
}

// ListExistingSets returns the sorted set numbers present on disk.
func (s *FSStore) ListExistingSets(ctx context.Context, contentType model.ContentType, title string) ([]int, error) {
	dir := s.itemDir(contentType, title)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}

	var numbers []int
	for _, entry := range entries {
		var n int
		if _, err := fmt.Sscanf(entry.Name(), "set_%03d.json", &n); err == nil && n >= 1 {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

// MissingSets diffs the expected set range against what is on disk. The
// answer is derived purely from persisted records, never from error logs. A
// set record with failed status counts as missing: it is a replaceable
// placeholder, not a done marker.
func (s *FSStore) MissingSets(ctx context.Context, contentType model.ContentType, title string, totalSegments, segmentsPerSet int) ([]int, error) {
	if segmentsPerSet < 1 {
		return nil, fmt.Errorf("segmentsPerSet must be positive, got %d", segmentsPerSet)
	}
	existing, err := s.ListExistingSets(ctx, contentType, title)
	if err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(existing))
	for _, n := range existing {
		set, err := s.LoadSet(ctx, contentType, title, n)
		if err != nil {
			return nil, err
		}
		if set.Status == model.SetStatusSuccess {
			done[n] = true
		}
	}

	expected := (totalSegments + segmentsPerSet - 1) / segmentsPerSet
	var missing []int
	for n := 1; n <= expected; n++ {
		if !done[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

// Delete removes the item document and all its sets.
func (s *FSStore) Delete(ctx context.Context, contentType model.ContentType, title string) error {
	dir := s.itemDir(contentType, title)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, contentType, title)
	}
	return os.RemoveAll(dir)
}

func (s *FSStore) itemDir(contentType model.ContentType, title string) string {
	return filepath.Join(s.root, SanitizeKey(string(contentType)), SanitizeKey(title))
}

func setFileName(n int) string {
	return fmt.Sprintf("set_%03d.json", n)
}

// maxKeyLength caps directory names well below common filesystem limits.
const maxKeyLength = 100

// SanitizeKey turns an arbitrary title into a safe, deterministic directory
// name. Distinct reasonable titles map to distinct keys; unsafe characters
// collapse to single dashes.
func SanitizeKey(raw string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	key := strings.Trim(b.String(), "-")
	if key == "" {
		key = "untitled"
	}
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	return key
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit record: %w", err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt record %s: %w", filepath.Base(path), err)
	}
	return nil
}
