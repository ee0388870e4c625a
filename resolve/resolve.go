// Package resolve implements the Resolver: the fix-point graph
// expansion and two-pass pruning that compute the closed set of
// package records satisfying a set of requirements, per spec.md §4.5.
package resolve

import (
	"context"
	"sort"

	"condamirror/channel"
	"condamirror/condaerr"
	"condamirror/filter"
	"condamirror/graph"
	"condamirror/internal/logging"
	"condamirror/matchspec"
	"condamirror/record"
)

// Config bundles a resolution request: the requirement/exclusion/
// disposable groups, the subdirs to search, and the filter knobs that
// pick LatestVersion/LatestBuild behavior.
type Config struct {
	// Requirements, Exclusions, and Disposables are raw match-spec
	// strings. They are parsed with Parser before resolution begins.
	Requirements []string
	Exclusions   []string
	Disposables  []string

	Subdirs []string

	// Parser parses every spec string this Config and every record
	// dependency references. Defaults to matchspec.DefaultParser.
	Parser matchspec.Parser

	// LatestVersions, when true, wraps every query in the
	// filter.LatestVersion filter, pinned by Requirements only when
	// LatestRoots is set.
	LatestVersions bool
	// LatestBuilds, when true, wraps every query in the
	// filter.LatestBuild filter, pinned by Requirements only when
	// LatestRoots is set.
	LatestBuilds bool
	// LatestRoots, when true, exempts root requirement names from the
	// LatestVersion/LatestBuild filters: every version matching a root
	// requirement is kept, while transitive dependencies are still
	// narrowed to their latest candidates. The decision of which names
	// are exempt is made once per Resolve call from Requirements, not
	// re-evaluated per query.
	LatestRoots bool
}

func (c Config) parser() matchspec.Parser {
	if c.Parser != nil {
		return c.Parser
	}
	return matchspec.DefaultParser
}

// Resolver runs resolution against a channel.Reader.
type Resolver struct {
	reader channel.Reader
	log    logging.Logger
}

// New returns a Resolver reading from reader, logging phase boundaries
// and per-node graph operations to log. A nil log is replaced with
// logging.Nop.
func New(reader channel.Reader, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Nop
	}
	return &Resolver{reader: reader, log: log}
}

// parsedGroups is requirements/exclusions/disposables grouped by name,
// the shape every filter and is_excluded check keys its lookups by.
type parsedGroups struct {
	requirements map[string][]matchspec.Specification
	exclusions   map[string][]matchspec.Specification
	disposables  map[string][]matchspec.Specification
}

// Resolve computes the closed set of records satisfying cfg against r.
// It returns *condaerr.UnsatisfiedRequirements if any root requirement
// has no surviving candidate after pruning.
func (r *Resolver) Resolve(ctx context.Context, cfg Config) ([]record.Record, error) {
	parser := cfg.parser()

	reqSpecs, err := parseAll(parser, cfg.Requirements)
	if err != nil {
		return nil, err
	}
	exclSpecs, err := parseAll(parser, cfg.Exclusions)
	if err != nil {
		return nil, err
	}
	dispSpecs, err := parseAll(parser, cfg.Disposables)
	if err != nil {
		return nil, err
	}

	groups := parsedGroups{
		requirements: filter.Group(reqSpecs),
		exclusions:   filter.Group(exclSpecs),
		disposables:  filter.Group(dispSpecs),
	}

	// The latest-roots pin_set is decided once per Resolve call, not
	// re-derived for every dequeued spec: root requirement names are
	// pinned (kept in full, bypassing LatestVersion/LatestBuild) iff
	// cfg.LatestRoots is set, matching original_source's
	// find_packages, which makes this decision once up front and
	// applies it uniformly to every query that follows.
	pinned := make(map[string]bool)
	if cfg.LatestRoots {
		for _, s := range cfg.Requirements {
			pinned[s] = true
		}
	}

	g := graph.New()
	if err := r.expand(ctx, g, cfg, groups, pinned); err != nil {
		return nil, err
	}
	r.log.Info("graph built", logging.F("nodes", g.Len()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.prune(ctx, g)
	r.log.Info("pruning complete", logging.F("nodes", g.Len()))

	missing := r.unsatisfiedRoots(g)
	if len(missing) > 0 {
		sort.Strings(missing)
		r.log.Warn("unsatisfied requirements", logging.F("missing", missing))
		return nil, &condaerr.UnsatisfiedRequirements{Missing: missing}
	}

	result := r.extract(g, groups)
	r.log.Info("resolution complete", logging.F("records", len(result)))
	return result, nil
}

func parseAll(parser matchspec.Parser, raw []string) ([]matchspec.Specification, error) {
	out := make([]matchspec.Specification, 0, len(raw))
	for _, s := range raw {
		spec, err := parser.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// expand runs the fix-point expansion loop of spec.md §4.5.1: a FIFO
// work-list of spec strings, seeded with the requirements, querying the
// channel once per distinct spec and linking every accepted candidate's
// dependencies back onto the queue.
func (r *Resolver) expand(ctx context.Context, g *graph.Graph, cfg Config, groups parsedGroups, pinned map[string]bool) error {
	parser := cfg.parser()

	queue := newWorkQueue()
	for _, s := range cfg.Requirements {
		queue.push(s)
		g.AddRoot(s)
	}

	processed := make(map[string]bool)

	for !queue.empty() {
		if err := ctx.Err(); err != nil {
			return err
		}

		s := queue.pop()
		if processed[s] {
			continue
		}
		processed[s] = true
		g.AddSpec(s)

		spec, err := parser.Parse(s)
		if err != nil {
			return err
		}

		candidates, err := r.reader.Query(ctx, s, cfg.Subdirs)
		if err != nil {
			return err
		}
		candidates = applyFilters(cfg, groups, pinned[s], spec, candidates)
		r.log.Debug("queried spec", logging.F("spec", s), logging.F("candidates", len(candidates)))

		for _, rec := range candidates {
			if isExcluded(rec, groups) {
				continue
			}
			g.AddRecord(rec)
			g.LinkCandidate(s, rec.Identity())

			for _, dep := range rec.Depends {
				g.AddSpec(dep)
				g.LinkDependency(rec.Identity(), dep)
				if !processed[dep] {
					queue.push(dep)
				}
			}
		}
	}
	return nil
}

// applyFilters builds the filter.Chain for one spec's candidate set.
// pinned reports whether s is in this Resolve call's latest-roots
// pin_set (decided once in Resolve, not re-derived here): pinned specs
// bypass LatestVersion/LatestBuild so their full matching candidate set
// survives, while every other spec sees the same LatestVersions/
// LatestBuilds filters applied uniformly regardless of root status.
func applyFilters(cfg Config, groups parsedGroups, pinned bool, spec matchspec.Specification, candidates []record.Record) []record.Record {
	var chain filter.Chain
	if len(groups.requirements[spec.Name()]) > 0 {
		chain = append(chain, filter.Inclusion(groups.requirements))
	}
	if len(groups.exclusions[spec.Name()]) > 0 {
		chain = append(chain, filter.Exclusion(groups.exclusions))
	}
	if !pinned {
		var pins map[string][]matchspec.Specification
		if cfg.LatestRoots {
			pins = groups.requirements
		}
		if cfg.LatestVersions {
			chain = append(chain, filter.LatestVersion(pins))
		}
		if cfg.LatestBuilds {
			chain = append(chain, filter.LatestBuild(pins))
		}
	}
	return chain.Apply(candidates)
}

// isExcluded implements spec.md §4.5.1's is_excluded predicate: a
// record is excluded if some requirement for its name rejects it, or
// some exclusion for its name accepts it.
func isExcluded(rec record.Record, groups parsedGroups) bool {
	for _, s := range groups.requirements[rec.Name] {
		if !s.Match(rec) {
			return true
		}
	}
	for _, s := range groups.exclusions[rec.Name] {
		if s.Match(rec) {
			return true
		}
	}
	return false
}

// prune runs the two pruning passes of spec.md §4.5.2 to fix-point.
func (r *Resolver) prune(ctx context.Context, g *graph.Graph) {
	r.pruneUnsatisfied(ctx, g)
	r.pruneOrphans(ctx, g)
}

// pruneUnsatisfied is Pass 1: repeatedly scans for specs with zero
// outgoing candidate edges, removes them and every record that
// depended on them, and recursively re-checks any predecessor spec
// that becomes unsatisfied as a result.
func (r *Resolver) pruneUnsatisfied(ctx context.Context, g *graph.Graph) {
	for {
		if ctx.Err() != nil {
			return
		}
		unsatisfied := findUnsatisfied(g)
		if len(unsatisfied) == 0 {
			return
		}
		for _, s := range unsatisfied {
			r.collapseUnsatisfiedSpec(g, s)
		}
	}
}

func findUnsatisfied(g *graph.Graph) []graph.Node {
	var out []graph.Node
	for _, n := range g.NodesOfKind(graph.SpecKind) {
		if !g.IsRoot(n) && g.OutDegree(n) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// collapseUnsatisfiedSpec removes s and cascades the removal to every
// record that named it as a dependency, per spec.md §4.5.2 step 3.
// Root specs are never removed — they stay in the graph, unsatisfied,
// so root verification (§4.5.3) can report them.
func (r *Resolver) collapseUnsatisfiedSpec(g *graph.Graph, s graph.Node) {
	if g.IsRoot(s) {
		return
	}
	if !g.Contains(s) || g.OutDegree(s) != 0 {
		return
	}

	predecessors := g.Predecessors(s) // records that depend on s
	g.Remove(s)

	for _, p := range predecessors {
		if !g.Contains(p) {
			continue
		}
		satisfiedSpecs := g.Predecessors(p) // specs p was a candidate for
		g.Remove(p)

		for _, q := range satisfiedSpecs {
			if g.Contains(q) && g.OutDegree(q) == 0 {
				r.collapseUnsatisfiedSpec(g, q)
			}
		}
	}
}

// pruneOrphans is Pass 2: repeatedly removes non-root specs with zero
// record predecessors, and any record that loses its last spec
// predecessor as a result.
func (r *Resolver) pruneOrphans(ctx context.Context, g *graph.Graph) {
	for {
		if ctx.Err() != nil {
			return
		}
		progressed := false
		for _, s := range g.NodesOfKind(graph.SpecKind) {
			if g.IsRoot(s) || !g.Contains(s) {
				continue
			}
			if g.InDegree(s) == 0 {
				r.removeOrphanSpec(g, s)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (r *Resolver) removeOrphanSpec(g *graph.Graph, s graph.Node) {
	if !g.Contains(s) {
		return
	}
	candidates := g.Successors(s) // records that satisfy s
	g.Remove(s)

	for _, rec := range candidates {
		if !g.Contains(rec) {
			continue
		}
		if g.InDegree(rec) == 0 {
			deps := g.Successors(rec)
			g.Remove(rec)
			for _, dep := range deps {
				if g.Contains(dep) && !g.IsRoot(dep) && g.InDegree(dep) == 0 {
					r.removeOrphanSpec(g, dep)
				}
			}
		}
	}
}

// unsatisfiedRoots returns every root spec with zero outgoing
// candidate edges, in no particular order; Resolve sorts them for
// deterministic error messages.
func (r *Resolver) unsatisfiedRoots(g *graph.Graph) []string {
	var missing []string
	for _, n := range g.NodesOfKind(graph.SpecKind) {
		if g.IsRoot(n) && g.OutDegree(n) == 0 {
			missing = append(missing, n.SpecString())
		}
	}
	return missing
}

// extract returns every record node remaining in the graph that is not
// disposable, per spec.md §4.5.3.
func (r *Resolver) extract(g *graph.Graph, groups parsedGroups) []record.Record {
	var out []record.Record
	for _, n := range g.NodesOfKind(graph.RecordKind) {
		rec, ok := g.RecordOf(n)
		if !ok {
			continue
		}
		if isDisposable(rec, groups.disposables) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func isDisposable(rec record.Record, disposables map[string][]matchspec.Specification) bool {
	for _, s := range disposables[rec.Name] {
		if s.Match(rec) {
			return true
		}
	}
	return false
}

// workQueue is a FIFO of spec strings. Pushing a string already queued
// is harmless: the expansion loop's `processed` set dedupes on pop, per
// spec.md §4.5.1.
type workQueue struct {
	items []string
}

func newWorkQueue() *workQueue { return &workQueue{} }

func (q *workQueue) push(s string) { q.items = append(q.items, s) }

func (q *workQueue) pop() string {
	s := q.items[0]
	q.items = q.items[1:]
	return s
}

func (q *workQueue) empty() bool { return len(q.items) == 0 }
