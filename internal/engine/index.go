package engine

import (
	"errors"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrIndexNotReady signals that Query was called before an index was built.
// Callers treat it as a cue to fall back to the remote catalog instead of
// serving an empty result.
var ErrIndexNotReady = errors.New("search index not ready")

// Field weights: name matches dominate, descriptions and tags follow,
// creator and category matches are weak signals.
const (
	weightName        = 10.0
	weightDescription = 5.0
	weightTags        = 5.0
	weightCreator     = 2.0
	weightCategory    = 2.0

	// Minimum accumulated score a document needs to count as a match.
	matchThreshold = 1.0
)

type indexedField struct {
	text   string
	tokens []string
	weight float64
}

type document struct {
	item   Item
	fields []indexedField
}

// Index answers fuzzy, weighted, multi-field queries over one snapshot of
// items. Building is O(n); querying never mutates the snapshot.
type Index struct {
	docs []document
}

// NewIndex tokenizes the searchable fields of every item.
func NewIndex(items []Item) *Index {
	docs := make([]document, 0, len(items))
	for _, item := range items {
		docs = append(docs, document{
			item: item,
			fields: []indexedField{
				newField(item.Name, weightName),
				newField(item.Description, weightDescription),
				newField(strings.Join(item.Tags, " "), weightTags),
				newField(item.Creator.Name+" "+item.Creator.Username, weightCreator),
				newField(item.Category, weightCategory),
			},
		})
	}
	return &Index{docs: docs}
}

func newField(text string, weight float64) indexedField {
	lowered := strings.ToLower(text)
	return indexedField{
		text:   lowered,
		tokens: strings.Fields(lowered),
		weight: weight,
	}
}

// Result is one answered query: the page slice plus the full match count.
type Result struct {
	Items      []Item
	TotalItems int
	Page       int
	PageSize   int
}

// Query runs search, filtering, sorting and pagination against the snapshot
// the index was built from. It is synchronous and deterministic: for a fixed
// snapshot and inputs, repeated calls return identical results.
func (idx *Index) Query(searchText string, f Filters, page, pageSize int) (Result, error) {
	if idx == nil || idx.docs == nil {
		return Result{}, ErrIndexNotReady
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	type scored struct {
		item  Item
		score float64
	}
	matched := make([]scored, 0, len(idx.docs))

	terms := strings.Fields(strings.ToLower(strings.TrimSpace(searchText)))
	for _, doc := range idx.docs {
		score := 0.0
		if len(terms) > 0 {
			score = scoreDocument(doc, terms)
			if score < matchThreshold {
				continue
			}
		}
		if !matchesFilters(doc.item, f) {
			continue
		}
		matched = append(matched, scored{item: doc.item, score: score})
	}

	if len(terms) > 0 {
		// Rank by match score; fall back to ID so ordering is stable.
		sort.SliceStable(matched, func(i, j int) bool {
			if matched[i].score != matched[j].score {
				return matched[i].score > matched[j].score
			}
			return matched[i].item.ID < matched[j].item.ID
		})
	}

	items := make([]Item, 0, len(matched))
	for _, m := range matched {
		items = append(items, m.item)
	}
	if len(terms) == 0 {
		SortItems(items, f.Sort)
	} else if f.Sort != "" && f.Sort != SortRecency {
		// An explicit sort overrides relevance; the recency default keeps
		// score order while a search is active.
		SortItems(items, f.Sort)
	}

	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return Result{
		Items:      items[start:end],
		TotalItems: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// scoreDocument sums, over the query terms, the best weighted field score.
// A term that matches nowhere contributes nothing; partial matches are fine.
func scoreDocument(doc document, terms []string) float64 {
	total := 0.0
	for _, term := range terms {
		best := 0.0
		for _, field := range doc.fields {
			if s := scoreField(field, term); s > best {
				best = s
			}
		}
		total += best
	}
	return total
}

func scoreField(field indexedField, term string) float64 {
	if field.text == "" {
		return 0
	}
	// Exact substring containment is the strongest signal.
	if strings.Contains(field.text, term) {
		return field.weight
	}
	for _, token := range field.tokens {
		// Subsequence match with a small edit distance, e.g. "invce" in "invoice".
		if rank := fuzzy.RankMatchNormalizedFold(term, token); rank >= 0 && rank <= len(token) {
			return field.weight * 0.8
		}
		// Typo tolerance for transpositions and substitutions.
		if fuzzy.LevenshteinDistance(term, token) <= allowedTypos(term) {
			return field.weight * 0.6
		}
	}
	return 0
}

func allowedTypos(term string) int {
	switch {
	case len(term) >= 7:
		return 2
	case len(term) >= 4:
		return 1
	default:
		return 0
	}
}

// matchesFilters applies the pure filter predicates. Order does not affect
// the outcome; set intersection is commutative.
func matchesFilters(item Item, f Filters) bool {
	if f.Category != "" && f.Category != AllCategories && !itemInCategory(item, f.Category) {
		return false
	}
	if item.Price < f.PriceRange.Min || (f.PriceRange.Max > 0 && item.Price > f.PriceRange.Max) {
		return false
	}
	if f.MinRating > 0 && item.Rating.Average < f.MinRating {
		return false
	}
	if len(f.Tags) > 0 && !containsAny(item.Tags, f.Tags) {
		return false
	}
	if len(f.Features) > 0 && !containsAny(item.Features, f.Features) {
		return false
	}
	return true
}

func itemInCategory(item Item, category string) bool {
	if strings.EqualFold(item.Category, category) {
		return true
	}
	for _, c := range item.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// containsAny implements OR membership within one facet.
func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// SortItems orders items in place according to the requested sort. Ties
// break on ID so the ordering stays deterministic.
func SortItems(items []Item, s Sort) {
	less := func(a, b Item) bool { return a.CreatedAt.After(b.CreatedAt) }
	switch s {
	case SortRating:
		less = func(a, b Item) bool { return a.Rating.Average > b.Rating.Average }
	case SortPopularity:
		less = func(a, b Item) bool { return popularity(a) > popularity(b) }
	case SortPriceAsc:
		less = func(a, b Item) bool { return a.Price < b.Price }
	case SortPriceDesc:
		less = func(a, b Item) bool { return a.Price > b.Price }
	case SortRecency:
		// default
	}
	sort.SliceStable(items, func(i, j int) bool {
		if less(items[i], items[j]) {
			return true
		}
		if less(items[j], items[i]) {
			return false
		}
		return items[i].ID < items[j].ID
	})
}

func popularity(item Item) int {
	if item.UsersCount > 0 {
		return item.UsersCount
	}
	return item.Views
}
