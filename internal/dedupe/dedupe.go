// Package dedupe groups records that represent the same fact and picks the
// record to keep in each group.
//
// Two keys are supported:
//   - the idempotency key (source sheet id, row index), which must be unique
//     in a destination table
//   - a content key (identifier, date, amount, label), which finds the same
//     transaction entered twice at different positions; content groups are
//     for audit and cleanup only
//
// The keeper of a group is the most recently created record; records with
// equal creation times fall back to batch order, later wins. Nothing here
// deletes anything: removal is left to a caller that has confirmation.
package dedupe

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Item is the view of a candidate or stored record used for grouping.
type Item struct {
	Key       types.RecordKey
	ID        string
	CreatedAt time.Time
	Order     int
	Fields    map[string]any
}

// FromCandidates wraps a batch of candidate records; Order is the batch
// position and CreatedAt is zero.
func FromCandidates(records []types.CandidateRecord) []Item {
	items := make([]Item, len(records))
	for i, r := range records {
		items[i] = Item{Key: r.Key, Order: i, Fields: r.Fields}
	}
	return items
}

// FromStored wraps stored records.
func FromStored(records []types.StoredRecord) []Item {
	items := make([]Item, len(records))
	for i, r := range records {
		items[i] = Item{
			Key:       r.Key,
			ID:        r.ID.String(),
			CreatedAt: r.CreatedAt,
			Order:     i,
			Fields:    r.Fields,
		}
	}
	return items
}

func (it Item) entry() types.DuplicateEntry {
	return types.DuplicateEntry{Key: it.Key, ID: it.ID}
}

// Group is a set of items sharing a key, reduced to one keeper.
type Group struct {
	Key     string
	Keeper  Item
	Removed []Item
}

// Report converts the group for a SyncReport.
func (g Group) Report() types.DuplicateGroup {
	removed := make([]types.DuplicateEntry, len(g.Removed))
	for i, it := range g.Removed {
		removed[i] = it.entry()
	}
	return types.DuplicateGroup{Key: g.Key, Keeper: g.Keeper.entry(), Removed: removed}
}

// Result is the outcome of grouping a list of items.
type Result struct {
	// Keepers holds one item per distinct key plus every item without a
	// key, in input order.
	Keepers []Item

	// Groups holds only keys shared by two or more items, in order of the
	// key's first appearance.
	Groups []Group
}

// RemovedCount returns the number of items reported as removable.
func (r Result) RemovedCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Removed)
	}
	return n
}

// Reports converts every group for a SyncReport.
func (r Result) Reports() []types.DuplicateGroup {
	if len(r.Groups) == 0 {
		return nil
	}
	out := make([]types.DuplicateGroup, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Report()
	}
	return out
}

// RemovedIDs returns the stored ids of removable items.
func (r Result) RemovedIDs() []string {
	var ids []string
	for _, g := range r.Groups {
		for _, it := range g.Removed {
			if it.ID != "" {
				ids = append(ids, it.ID)
			}
		}
	}
	return ids
}

// ByIdempotencyKey groups items by (source sheet id, row index).
func ByIdempotencyKey(items []Item) Result {
	return group(items, func(it Item) (string, bool) {
		return it.Key.String(), true
	})
}

// ByContentKey groups items by the content key described by spec. Items
// whose identifier is blank are never grouped. A nil spec groups nothing.
func ByContentKey(items []Item, spec *types.ContentKeySpec) Result {
	if spec == nil || spec.Identifier == "" {
		return Result{Keepers: append([]Item(nil), items...)}
	}
	return group(items, func(it Item) (string, bool) {
		return ContentKey(it.Fields, spec)
	})
}

// ContentKey builds the normalized content key of a record. ok is false when
// the identifier is blank.
func ContentKey(fields map[string]any, spec *types.ContentKeySpec) (key string, ok bool) {
	if spec == nil {
		return "", false
	}
	identifier := normalizeValue(fields[spec.Identifier])
	if identifier == "" {
		return "", false
	}

	parts := []string{identifier}
	for _, name := range []string{spec.Date, spec.Amount, spec.Label} {
		if name == "" {
			continue
		}
		parts = append(parts, normalizeValue(fields[name]))
	}
	return strings.Join(parts, "|"), true
}

// normalizeValue renders a field value for key comparison: strings are
// width-folded, trimmed, lower-cased and whitespace-collapsed; amounts use
// their canonical decimal form so "4000.00" and "4000" agree.
func normalizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(val))), " ")
	case types.Date:
		return val.String()
	case decimal.Decimal:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return types.DateOf(val).String()
	default:
		return normalizeValue(toString(val))
	}
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return decimal.NewFromFloat(val).String()
	default:
		return ""
	}
}

// group buckets items by key and picks one keeper per bucket.
func group(items []Item, keyOf func(Item) (string, bool)) Result {
	type bucket struct {
		key     string
		members []int
	}

	var buckets []*bucket
	byKey := make(map[string]*bucket)
	keeper := make([]bool, len(items))

	for i, it := range items {
		key, ok := keyOf(it)
		if !ok {
			keeper[i] = true
			continue
		}
		b, exists := byKey[key]
		if !exists {
			b = &bucket{key: key}
			byKey[key] = b
			buckets = append(buckets, b)
		}
		b.members = append(b.members, i)
	}

	var result Result
	for _, b := range buckets {
		best := b.members[0]
		for _, idx := range b.members[1:] {
			if newer(items[idx], items[best]) {
				best = idx
			}
		}
		keeper[best] = true

		if len(b.members) == 1 {
			continue
		}
		g := Group{Key: b.key, Keeper: items[best]}
		for _, idx := range b.members {
			if idx != best {
				g.Removed = append(g.Removed, items[idx])
			}
		}
		result.Groups = append(result.Groups, g)
	}

	for i, it := range items {
		if keeper[i] {
			result.Keepers = append(result.Keepers, it)
		}
	}

	return result
}

// newer reports whether a should be kept over b.
func newer(a, b Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Order != b.Order {
		return a.Order > b.Order
	}
	return a.ID > b.ID
}
