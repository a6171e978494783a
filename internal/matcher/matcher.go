// Package matcher proposes mappings from spreadsheet headers to the fields
// of a destination table.
//
// Headers drift between syncs (language, spacing, punctuation, renaming), so
// matching goes from strict to loose:
//
//  1. exact, case-sensitive match against the field name or an alias (1.0)
//  2. match after NFKC folding, lower-casing and collapsing "_", "-" and
//     whitespace runs; singular and plural forms are treated alike (0.9)
//  3. substring containment in either direction (0.6 to 0.8, scaled by the
//     length ratio of the shorter string to the longer)
//
// Fields are matched in declaration order and a header is consumed by the
// first field that takes it.
package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Method records how a header was matched.
type Method string

const (
	MethodExact      Method = "exact"
	MethodNormalized Method = "normalized"
	MethodPartial    Method = "partial"
	MethodNone       Method = "none"
)

const (
	exactConfidence      = 1.0
	normalizedConfidence = 0.9
	partialBase          = 0.6
	partialSpan          = 0.2

	// DefaultMinConfidence is the lowest suggestion confidence Resolve
	// accepts when no other threshold is configured.
	DefaultMinConfidence = 0.6
)

// Suggestion is the proposed source header for one destination field.
// Header is empty and Confidence is 0 when the field is unmatched.
type Suggestion struct {
	Field      string  `json:"field" yaml:"field"`
	Header     string  `json:"header,omitempty" yaml:"source,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Method     Method  `json:"method" yaml:"method"`
}

// Matched reports whether a header was found for the field.
func (s Suggestion) Matched() bool {
	return s.Method != MethodNone && s.Header != ""
}

// Suggest returns one suggestion per schema field, in field order. It never
// fails; in the worst case every field is unmatched.
func Suggest(headers []string, schema *types.TableSchema) []Suggestion {
	if schema == nil {
		return nil
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalize(h)
	}

	consumed := make([]bool, len(headers))
	suggestions := make([]Suggestion, 0, len(schema.Fields))

	for _, field := range schema.Fields {
		candidates := append([]string{field.Name}, field.Aliases...)

		idx, confidence, method := matchField(headers, normalized, consumed, candidates)
		if idx < 0 {
			suggestions = append(suggestions, Suggestion{Field: field.Name, Method: MethodNone})
			continue
		}

		consumed[idx] = true
		suggestions = append(suggestions, Suggestion{
			Field:      field.Name,
			Header:     headers[idx],
			Confidence: confidence,
			Method:     method,
		})
	}

	return suggestions
}

// matchField finds the best unconsumed header for one field. It returns -1
// when nothing matches.
func matchField(headers, normalized []string, consumed []bool, candidates []string) (int, float64, Method) {
	for i, h := range headers {
		if consumed[i] || strings.TrimSpace(h) == "" {
			continue
		}
		for _, c := range candidates {
			if h == c {
				return i, exactConfidence, MethodExact
			}
		}
	}

	normCandidates := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if n := normalize(c); n != "" {
			normCandidates = append(normCandidates, n)
		}
	}

	for i, nh := range normalized {
		if consumed[i] || nh == "" {
			continue
		}
		for _, nc := range normCandidates {
			if nh == nc || inflection.Singular(nh) == inflection.Singular(nc) {
				return i, normalizedConfidence, MethodNormalized
			}
		}
	}

	best, bestConfidence := -1, 0.0
	for i, nh := range normalized {
		if consumed[i] || nh == "" {
			continue
		}
		for _, nc := range normCandidates {
			if !strings.Contains(nh, nc) && !strings.Contains(nc, nh) {
				continue
			}
			if c := partialConfidence(nh, nc); c > bestConfidence {
				best, bestConfidence = i, c
			}
		}
	}
	if best >= 0 {
		return best, bestConfidence, MethodPartial
	}

	return -1, 0, MethodNone
}

func partialConfidence(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	c := partialBase + partialSpan*float64(shorter)/float64(longer)
	return math.Round(c*100) / 100
}

// normalize folds width and case and collapses separators to single spaces.
func normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))

	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Resolve merges declared mappings with matcher suggestions into the mapping
// set used for a run. Declared mappings always win; a suggestion is used
// only for a field and a header that no declared mapping claims, and only
// at or above minConfidence. Types and required flags come from the schema
// unless the declared mapping sets them.
func Resolve(schema *types.TableSchema, declared []types.ColumnMapping, suggestions []Suggestion, minConfidence float64) []types.ColumnMapping {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	fieldTaken := make(map[string]bool)
	headerTaken := make(map[string]bool)
	var resolved []types.ColumnMapping

	for _, m := range declared {
		if spec, ok := lookupField(schema, m.Field); ok {
			if m.Type == "" {
				m.Type = spec.Type
			}
			m.Required = m.Required || spec.Required
		}
		if m.Type == "" {
			m.Type = types.TypeText
		}
		m.Confidence = exactConfidence
		m.Origin = types.OriginDeclared

		fieldTaken[m.Field] = true
		headerTaken[m.SourceHeader] = true
		resolved = append(resolved, m)
	}

	for _, s := range suggestions {
		if !s.Matched() || s.Confidence < minConfidence || fieldTaken[s.Field] || headerTaken[s.Header] {
			continue
		}
		spec, _ := lookupField(schema, s.Field)
		typ := spec.Type
		if typ == "" {
			typ = types.TypeText
		}

		fieldTaken[s.Field] = true
		headerTaken[s.Header] = true
		resolved = append(resolved, types.ColumnMapping{
			SourceHeader: s.Header,
			Field:        s.Field,
			Required:     spec.Required,
			Type:         typ,
			Confidence:   s.Confidence,
			Origin:       types.OriginMatched,
		})
	}

	// Schema order first; fields the schema does not know keep declared order.
	order := make(map[string]int)
	if schema != nil {
		for i, f := range schema.Fields {
			order[f.Name] = i
		}
	}
	rank := func(field string) int {
		if i, ok := order[field]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return rank(resolved[i].Field) < rank(resolved[j].Field)
	})

	return resolved
}

func lookupField(schema *types.TableSchema, name string) (types.FieldSpec, bool) {
	if schema == nil {
		return types.FieldSpec{}, false
	}
	return schema.Field(name)
}

// Drift compares the sheet's headers against a mapping set. Unmapped lists
// headers no mapping reads (they end up in the catch-all payload); missing
// lists mapped headers that the sheet no longer has.
func Drift(headers []string, mappings []types.ColumnMapping) (unmapped, missing []string) {
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.SourceHeader] = true
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
		if !mapped[h] {
			unmapped = append(unmapped, h)
		}
	}

	for _, m := range mappings {
		if !present[m.SourceHeader] {
			missing = append(missing, m.SourceHeader)
		}
	}

	return unmapped, missing
}
