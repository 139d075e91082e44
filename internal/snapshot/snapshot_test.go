package snapshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/classmap/internal/model"
)

func sampleRels() []model.Relationship {
	return []model.Relationship{
		{Source: "Car", Target: "Vehicle", Category: model.Inheritance, File: "car.py"},
		{Source: "Car", Target: "Engine", Category: model.Composition, Member: "__engine", Context: "__init__"},
		{Source: "Car", Target: "Engine", Category: model.StrongComposition, Member: "__engine", Context: "__init__"},
		{Source: "House", Target: "Room", Category: model.Aggregation, Member: "rooms"},
		{Source: "Student", Target: "Course", Category: model.Association, Member: "course", Context: "enroll"},
		{Source: "Student", Target: "Course", Category: model.Association, Member: "course", Context: "drop"},
	}
}

func TestTake(t *testing.T) {
	t.Parallel()

	snap := Take("/src", sampleRels())

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "/src", snap.Root)
	assert.Equal(t, Version, snap.Version)
	assert.False(t, snap.CreatedAt.IsZero())
	for _, c := range model.Categories {
		assert.Contains(t, snap.Relationships, c)
		assert.NotNil(t, snap.Relationships[c], "category %s", c)
	}
	assert.Empty(t, snap.Relationships[model.Dependency])
	assert.Equal(t, []Tuple{{Source: "Car", Target: "Vehicle"}}, snap.Relationships[model.Inheritance])
	// Tuples differing only in context collapse.
	assert.Len(t, snap.Relationships[model.Association], 1)
}

func TestTakeSorted(t *testing.T) {
	t.Parallel()

	rels := []model.Relationship{
		{Source: "B", Target: "X", Category: model.Composition, Member: "x"},
		{Source: "A", Target: "Y", Category: model.Composition, Member: "y"},
		{Source: "A", Target: "X", Category: model.Composition, Member: "z"},
		{Source: "A", Target: "X", Category: model.Composition, Member: "a"},
	}
	got := Take("", rels).Relationships[model.Composition]
	want := []Tuple{
		{Source: "A", Target: "X", Member: "a"},
		{Source: "A", Target: "X", Member: "z"},
		{Source: "A", Target: "Y", Member: "y"},
		{Source: "B", Target: "X", Member: "x"},
	}
	assert.Equal(t, want, got)
}

func TestCompareSameSetIsEmpty(t *testing.T) {
	t.Parallel()

	rels := sampleRels()
	report := Compare(Take("/src", rels), rels)
	assert.True(t, report.Empty())
	added, removed := report.Counts()
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestCompareDetectsChanges(t *testing.T) {
	t.Parallel()

	old := Take("/src", sampleRels())
	rels := append(sampleRels()[1:], model.Relationship{
		Source: "Car", Target: "Wheel", Category: model.Aggregation, Member: "wheels",
	})

	report := Compare(old, rels)

	require.Len(t, report.Changes, 2)
	assert.Equal(t, model.Aggregation, report.Changes[0].Category)
	assert.Equal(t, []Tuple{{Source: "Car", Target: "Wheel", Member: "wheels"}}, report.Changes[0].Added)
	assert.Empty(t, report.Changes[0].Removed)
	assert.Equal(t, model.Inheritance, report.Changes[1].Category)
	assert.Equal(t, []Tuple{{Source: "Car", Target: "Vehicle"}}, report.Changes[1].Removed)

	added, removed := report.Counts()
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)
}

func TestDiffNilOld(t *testing.T) {
	t.Parallel()

	report := Diff(nil, Take("", sampleRels()))
	added, removed := report.Counts()
	assert.Equal(t, 5, added)
	assert.Zero(t, removed)
}

func TestDiffUnknownCategory(t *testing.T) {
	t.Parallel()

	old := Take("", nil)
	old.Relationships["realization"] = []Tuple{{Source: "A", Target: "B"}}
	report := Diff(old, Take("", nil))

	require.Len(t, report.Changes, 1)
	assert.Equal(t, model.Category("realization"), report.Changes[0].Category)
	assert.Len(t, report.Changes[0].Removed, 1)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"snap.json", "snap.yaml", "snap.yml", "snap.db", "nested/dir/snap.sqlite"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store, err := Open(filepath.Join(t.TempDir(), name))
			require.NoError(t, err)
			defer store.Close()

			_, err = store.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			history, err := store.History(ctx)
			require.NoError(t, err)
			assert.Empty(t, history)

			rels := sampleRels()
			saved := Take("/src", rels)
			require.NoError(t, store.Save(ctx, saved))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, saved.ID, loaded.ID)
			assert.Equal(t, saved.Root, loaded.Root)
			assert.Equal(t, saved.Version, loaded.Version)
			assert.True(t, saved.CreatedAt.Equal(loaded.CreatedAt), "created_at %v != %v", saved.CreatedAt, loaded.CreatedAt)
			assert.True(t, Compare(loaded, rels).Empty())
			assert.True(t, Diff(saved, loaded).Empty())

			history, err = store.History(ctx)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, saved.ID, history[0].ID)
		})
	}
}

func TestOpenChoosesStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name   string
		format Format
		sqlite bool
	}{
		{"a.json", FormatJSON, false},
		{"a.snapshot", FormatJSON, false},
		{"a.YAML", FormatYAML, false},
		{"a.db", "", true},
	}
	for _, tt := range tests {
		store, err := Open(filepath.Join(dir, tt.name))
		require.NoError(t, err, tt.name)
		if tt.sqlite {
			_, ok := store.(*SQLiteStore)
			assert.True(t, ok, tt.name)
		} else {
			fs, ok := store.(*FileStore)
			require.True(t, ok, tt.name)
			assert.Equal(t, tt.format, fs.Format, tt.name)
		}
		require.NoError(t, store.Close())
	}
}

func TestSQLiteKeepsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	first := Take("/src", sampleRels())
	first.CreatedAt = first.CreatedAt.Add(-time.Hour)
	second := Take("/src", sampleRels()[:2])
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	entries, err := store.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)
	assert.Equal(t, "/src", entries[1].Root)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))

	latest, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Len(t, latest.Relationships[model.Composition], 1)
	assert.Empty(t, latest.Relationships[model.Aggregation])
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := (&FileStore{Path: path, Format: FormatJSON}).Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, &Report{}))
	assert.Contains(t, buf.String(), "no relationship changes")

	buf.Reset()
	report := &Report{Changes: []Change{{
		Category: model.Composition,
		Added:    []Tuple{{Source: "Car", Target: "Engine", Member: "engine"}},
		Removed:  []Tuple{{Source: "Car", Target: "Motor"}},
	}}}
	require.NoError(t, WriteReport(&buf, report))

	out := buf.String()
	assert.Contains(t, out, "1 added, 1 removed")
	assert.Contains(t, out, "composition")
	assert.Contains(t, out, "+ Car -> Engine (engine)")
	assert.Contains(t, out, "- Car -> Motor")
}
