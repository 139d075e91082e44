// Package snapshot records the relationship set of a run and reports what
// changed between two runs.
package snapshot

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phobologic/classmap/internal/model"
)

// Version is the snapshot format version written by Take.
const Version = 1

// Tuple is the compared shape of one relationship. Context and File are not
// part of it.
type Tuple struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Member string `json:"member,omitempty" yaml:"member,omitempty"`
}

func (t Tuple) less(o Tuple) bool {
	if t.Source != o.Source {
		return t.Source < o.Source
	}
	if t.Target != o.Target {
		return t.Target < o.Target
	}
	return t.Member < o.Member
}

// Snapshot is the persisted relationship set of one run, keyed by category.
type Snapshot struct {
	ID            string                     `json:"id" yaml:"id"`
	CreatedAt     time.Time                  `json:"created_at" yaml:"created_at"`
	Root          string                     `json:"root" yaml:"root"`
	Version       int                        `json:"version" yaml:"version"`
	Relationships map[model.Category][]Tuple `json:"relationships" yaml:"relationships"`
}

// Take builds a snapshot of rels. Every category is present; tuples are
// deduplicated and sorted.
func Take(root string, rels []model.Relationship) *Snapshot {
	sets := make(map[model.Category]map[Tuple]struct{}, len(model.Categories))
	for _, c := range model.Categories {
		sets[c] = make(map[Tuple]struct{})
	}
	for _, r := range rels {
		if sets[r.Category] == nil {
			sets[r.Category] = make(map[Tuple]struct{})
		}
		sets[r.Category][Tuple{Source: r.Source, Target: r.Target, Member: r.Member}] = struct{}{}
	}

	snap := &Snapshot{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		Root:          root,
		Version:       Version,
		Relationships: make(map[model.Category][]Tuple, len(sets)),
	}
	for c, set := range sets {
		snap.Relationships[c] = sortedTuples(set)
	}
	return snap
}

func sortedTuples(set map[Tuple]struct{}) []Tuple {
	tuples := make([]Tuple, 0, len(set))
	for t := range set {
		tuples = append(tuples, t)
	}
	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].less(tuples[j])
	})
	return tuples
}

// Change lists the tuples of one category that appeared or disappeared.
type Change struct {
	Category model.Category
	Added    []Tuple
	Removed  []Tuple
}

// Report is the result of comparing two relationship sets. Changes holds
// only categories with differences, in canonical category order.
type Report struct {
	Changes []Change
}

// Empty reports whether nothing changed.
func (r *Report) Empty() bool {
	return len(r.Changes) == 0
}

// Counts returns the total number of added and removed tuples.
func (r *Report) Counts() (added, removed int) {
	for _, c := range r.Changes {
		added += len(c.Added)
		removed += len(c.Removed)
	}
	return added, removed
}

// Compare diffs the stored snapshot old against the relationships of the
// current run.
func Compare(old *Snapshot, rels []model.Relationship) *Report {
	root := ""
	if old != nil {
		root = old.Root
	}
	return Diff(old, Take(root, rels))
}

// Diff computes the per-category set difference between two snapshots. A
// nil old snapshot reports everything in cur as added.
func Diff(old, cur *Snapshot) *Report {
	report := &Report{}
	for _, c := range categories(old, cur) {
		oldSet := tupleSet(old, c)
		curSet := tupleSet(cur, c)

		change := Change{Category: c}
		for t := range curSet {
			if _, ok := oldSet[t]; !ok {
				change.Added = append(change.Added, t)
			}
		}
		for t := range oldSet {
			if _, ok := curSet[t]; !ok {
				change.Removed = append(change.Removed, t)
			}
		}
		if len(change.Added) == 0 && len(change.Removed) == 0 {
			continue
		}
		sort.Slice(change.Added, func(i, j int) bool { return change.Added[i].less(change.Added[j]) })
		sort.Slice(change.Removed, func(i, j int) bool { return change.Removed[i].less(change.Removed[j]) })
		report.Changes = append(report.Changes, change)
	}
	return report
}

// categories returns the canonical categories followed by any others found
// in either snapshot, sorted.
func categories(snaps ...*Snapshot) []model.Category {
	out := append([]model.Category(nil), model.Categories...)
	var extra []model.Category
	seen := make(map[model.Category]struct{})
	for _, s := range snaps {
		if s == nil {
			continue
		}
		for c := range s.Relationships {
			if c.Valid() {
				continue
			}
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				extra = append(extra, c)
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func tupleSet(s *Snapshot, c model.Category) map[Tuple]struct{} {
	set := make(map[Tuple]struct{})
	if s == nil {
		return set
	}
	for _, t := range s.Relationships[c] {
		set[t] = struct{}{}
	}
	return set
}
