// Package regression implements RegressionSelector: picking the subset of
// tests correlated with a set of changed source files via a co-occurrence
// BFS with hop decay and recency weighting.
package regression

import (
	"math"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"testweaver/internal/dag"
	"testweaver/internal/model"
)

// Commit is one VCS commit touching a set of files, as surfaced by a
// CoOccurrenceGraph.
type Commit struct {
	Sha   string
	Date  time.Time
	Files []string
}

// CoOccurrenceGraph answers "which commits touched this file" — the core
// does not mandate an on-disk representation, only this query surface.
type CoOccurrenceGraph interface {
	CommitsTouching(file string) []Commit
}

// Options configures one selection.
type Options struct {
	MaxTestPercentage    float64 // <= 1
	MaxHops              int
	DecayPerHop          float64 // default 0.5
	RecencyHalfLifeDays  float64 // default 180
	MinTests             int     // default 3
	SourceExtensions     []string // doublestar patterns, e.g. "**/*.go"
	Now                  time.Time
}

// Selection is the result of one RegressionSelector run.
type Selection struct {
	Selected     []model.TestId
	FallbackUsed bool
	Scores       map[model.TestId]float64
}

// Select implements spec.md §4.8's algorithm: seed frontier from changed
// files, expand by co-occurrence across hops with decay, map test files to
// TestIds, rank by score, take the top N, add dependency closure, and fall
// back to every stable test if too few candidates survive.
func Select(g *dag.TestGraph, nodes []model.TestNode, changedFiles []string, coOcc CoOccurrenceGraph, stableTests []model.TestId, opts Options) Selection {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if opts.DecayPerHop == 0 {
		opts.DecayPerHop = 0.5
	}
	if opts.RecencyHalfLifeDays == 0 {
		opts.RecencyHalfLifeDays = 180
	}
	if opts.MinTests == 0 {
		opts.MinTests = 3
	}

	frontier := filterByExtension(changedFiles, opts.SourceExtensions)
	scores := make(map[string]float64) // test-file-path -> score
	visitedSourceFiles := make(map[string]bool)
	for _, f := range frontier {
		visitedSourceFiles[f] = true
	}

	maxCandidates := maxInt(opts.MinTests*4, 32)

	for hop := 0; hop <= opts.MaxHops && len(frontier) > 0; hop++ {
		decay := math.Pow(opts.DecayPerHop, float64(hop))
		next := make([]string, 0)
		nextSeen := make(map[string]bool)

		for _, file := range frontier {
			for _, commit := range coOcc.CommitsTouching(file) {
				ageDays := now.Sub(commit.Date).Hours() / 24
				recency := math.Exp(-math.Ln2 * ageDays / opts.RecencyHalfLifeDays)
				for _, co := range commit.Files {
					if co == file {
						continue
					}
					scores[co] += decay * recency
					if isSourceFile(co, opts.SourceExtensions) && !visitedSourceFiles[co] {
						if !nextSeen[co] {
							nextSeen[co] = true
							next = append(next, co)
						}
					}
				}
			}
		}

		if len(scores) >= maxCandidates {
			break
		}
		for _, f := range next {
			visitedSourceFiles[f] = true
		}
		frontier = next
	}

	byExecutable := make(map[string]model.TestId, len(nodes))
	byBasename := make(map[string]model.TestId, len(nodes))
	for _, n := range nodes {
		byExecutable[n.Executable] = n.Id
		byBasename[basename(n.Executable)] = n.Id
	}

	testScores := make(map[model.TestId]float64)
	for file, score := range scores {
		if id, ok := byExecutable[file]; ok {
			testScores[id] += score
			continue
		}
		if id, ok := byBasename[basename(file)]; ok {
			testScores[id] += score
		}
	}

	stableSet := make(map[model.TestId]bool, len(stableTests))
	for _, id := range stableTests {
		stableSet[id] = true
	}

	type scored struct {
		id    model.TestId
		score float64
	}
	ranked := make([]scored, 0, len(testScores))
	for id, score := range testScores {
		if stableSet[id] {
			ranked = append(ranked, scored{id, score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	n := int(math.Ceil(opts.MaxTestPercentage * float64(len(stableTests))))
	if n > len(ranked) {
		n = len(ranked)
	}
	selected := make([]model.TestId, 0, n)
	for i := 0; i < n; i++ {
		selected = append(selected, ranked[i].id)
	}

	if len(selected) < opts.MinTests {
		all := make([]model.TestId, len(stableTests))
		copy(all, stableTests)
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		return Selection{Selected: all, FallbackUsed: true, Scores: testScores}
	}

	closure := g.Closure(selected)
	sort.Slice(closure, func(i, j int) bool { return closure[i] < closure[j] })

	return Selection{Selected: closure, FallbackUsed: false, Scores: testScores}
}

func filterByExtension(files []string, patterns []string) []string {
	if len(patterns) == 0 {
		return files
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if isSourceFile(f, patterns) {
			out = append(out, f)
		}
	}
	return out
}

func isSourceFile(file string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, file); ok {
			return true
		}
	}
	return false
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
