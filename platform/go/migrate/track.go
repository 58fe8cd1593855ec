package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Unversioned is the revision reported for a schema that has no version
// marker yet (pre-first-migration state).
const Unversioned = 0

// ToLatest selects the newest available revision when passed as the target
// of an upgrade.
const ToLatest = -1

// Step is a single ordered unit of schema change. DownSQL may be empty when
// the author provided no reverse script; Downgrade through such a step fails.
type Step struct {
	Revision int
	Name     string
	UpSQL    string
	DownSQL  string
}

// Track is an independent, ordered migration history (e.g. the shared
// registry track vs. the per-tenant schema track). Steps are sorted by
// revision ascending with strictly increasing revisions.
type Track struct {
	name  string
	steps []Step
}

var stepFilePattern = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// Load reads a track from dir inside fsys. Files follow the
// NNNN_name.up.sql / NNNN_name.down.sql convention; every step must have an
// up script, the down script is optional.
func Load(name string, fsys fs.FS, dir string) (*Track, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", name, err)
	}

	type pending struct {
		name    string
		upSQL   string
		downSQL string
	}
	byRevision := make(map[int]*pending)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := stepFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("track %s: unexpected file %q", name, entry.Name())
		}
		revision, err := strconv.Atoi(strings.TrimLeft(m[1], "0"))
		if err != nil || revision <= 0 {
			return nil, fmt.Errorf("track %s: invalid revision in %q", name, entry.Name())
		}

		raw, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("track %s: read %s: %w", name, entry.Name(), err)
		}

		p := byRevision[revision]
		if p == nil {
			p = &pending{name: m[2]}
			byRevision[revision] = p
		}
		if p.name != m[2] {
			return nil, fmt.Errorf("track %s: revision %d has conflicting names %q and %q", name, revision, p.name, m[2])
		}
		switch m[3] {
		case "up":
			if p.upSQL != "" {
				return nil, fmt.Errorf("track %s: duplicate up script for revision %d", name, revision)
			}
			p.upSQL = string(raw)
		case "down":
			if p.downSQL != "" {
				return nil, fmt.Errorf("track %s: duplicate down script for revision %d", name, revision)
			}
			p.downSQL = string(raw)
		}
	}

	revisions := make([]int, 0, len(byRevision))
	for rev := range byRevision {
		revisions = append(revisions, rev)
	}
	sort.Ints(revisions)

	steps := make([]Step, 0, len(revisions))
	for _, rev := range revisions {
		p := byRevision[rev]
		if strings.TrimSpace(p.upSQL) == "" {
			return nil, fmt.Errorf("track %s: revision %d (%s) has no up script", name, rev, p.name)
		}
		steps = append(steps, Step{Revision: rev, Name: p.name, UpSQL: p.upSQL, DownSQL: p.downSQL})
	}

	return &Track{name: name, steps: steps}, nil
}

// Name returns the track identifier used in logs and errors.
func (t *Track) Name() string { return t.name }

// Steps returns a copy of the ordered steps.
func (t *Track) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Latest returns the highest revision on the track, or Unversioned when the
// track is empty.
func (t *Track) Latest() int {
	if len(t.steps) == 0 {
		return Unversioned
	}
	return t.steps[len(t.steps)-1].Revision
}

// Ascending returns the steps with revision strictly greater than from and
// at most to, in apply order. to == ToLatest means the end of the track.
func (t *Track) Ascending(from, to int) ([]Step, error) {
	if to == ToLatest {
		to = t.Latest()
	}
	if to > t.Latest() {
		return nil, fmt.Errorf("track %s: unknown target revision %d (latest is %d)", t.name, to, t.Latest())
	}
	if from > to {
		return nil, fmt.Errorf("track %s: cannot upgrade from %d to %d", t.name, from, to)
	}
	var out []Step
	for _, step := range t.steps {
		if step.Revision > from && step.Revision <= to {
			out = append(out, step)
		}
	}
	return out, nil
}

// Descending returns the steps with revision at most from and strictly
// greater than to, in reverse order, for explicit downgrades.
func (t *Track) Descending(from, to int) ([]Step, error) {
	if to > from {
		return nil, fmt.Errorf("track %s: cannot downgrade from %d to %d", t.name, from, to)
	}
	if from > t.Latest() {
		return nil, fmt.Errorf("track %s: unknown revision %d (latest is %d)", t.name, from, t.Latest())
	}
	var out []Step
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		if step.Revision <= from && step.Revision > to {
			out = append(out, step)
		}
	}
	return out, nil
}
