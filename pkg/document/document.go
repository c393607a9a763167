package document

import (
	"sort"
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/types"
)

// ItemCollection is the schemaless document every engine component
// exchanges: a mapping from case-folded item names to ordered lists of
// typed values. Single values are stored as singleton lists; readers must
// handle empty lists.
type ItemCollection struct {
	items map[string][]any
}

// aliasPairs are deprecated item names mirrored on write and accepted on
// read for one more major version.
var aliasPairs = map[string]string{
	"name":                     types.ItemNameDeprecated,
	types.ItemNameDeprecated:   "name",
	types.ItemOwner:            types.ItemOwnerDeprecated,
	types.ItemOwnerDeprecated:  types.ItemOwner,
}

// New creates an empty ItemCollection.
func New() *ItemCollection {
	return &ItemCollection{items: make(map[string][]any)}
}

// FromMap creates an ItemCollection initialized with a deep copy of the
// given item map.
func FromMap(items map[string]any) (*ItemCollection, error) {
	doc := New()
	for name, value := range items {
		if err := doc.SetItemValue(name, value); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// SetItemValue replaces the value list of an item. A nil value removes the
// item. Values outside the basic type set fail the write.
func (d *ItemCollection) SetItemValue(name string, value any) error {
	return d.setItemValue(name, value, false, false)
}

// ReplaceItemValue is an alias of SetItemValue kept for API symmetry with
// the append operations.
func (d *ItemCollection) ReplaceItemValue(name string, value any) error {
	return d.SetItemValue(name, value)
}

// AppendItemValue appends values to the existing list of an item.
func (d *ItemCollection) AppendItemValue(name string, value any) error {
	return d.setItemValue(name, value, true, false)
}

// AppendItemValueUnique appends values, skipping duplicates and empty
// strings.
func (d *ItemCollection) AppendItemValueUnique(name string, value any) error {
	return d.setItemValue(name, value, true, true)
}

func (d *ItemCollection) setItemValue(name string, value any, append, unique bool) error {
	name = foldName(name)
	if name == "" {
		return nil
	}
	if value == nil {
		if !append {
			d.RemoveItem(name)
		}
		return nil
	}
	list, err := normalizeValue(value)
	if err != nil {
		return err
	}
	if append {
		list = appendValues(d.items[name], list, unique)
	} else if unique {
		list = appendValues(nil, list, true)
	}
	d.items[name] = list
	d.mirrorAlias(name, list)
	return nil
}

// mirrorAlias keeps deprecated alias items in sync on write.
func (d *ItemCollection) mirrorAlias(name string, list []any) {
	if alias, ok := aliasPairs[name]; ok {
		d.items[alias] = deepCopyList(list)
	}
}

func appendValues(existing, incoming []any, unique bool) []any {
	out := make([]any, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	for _, v := range incoming {
		if unique {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			if containsValue(out, v) {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

func containsValue(list []any, value any) bool {
	for _, v := range list {
		if valueEquals(v, value) {
			return true
		}
	}
	return false
}

// GetItemValue returns the value list of an item. The returned slice is the
// internal list; use Clone for an isolated copy. Lookups accept deprecated
// alias names.
func (d *ItemCollection) GetItemValue(name string) []any {
	name = foldName(name)
	if list, ok := d.items[name]; ok {
		return list
	}
	if alias, ok := aliasPairs[name]; ok {
		if list, found := d.items[alias]; found {
			return list
		}
	}
	return nil
}

// GetItemValueString returns the first value coerced to string, or "".
func (d *ItemCollection) GetItemValueString(name string) string {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return ""
	}
	return toString(list[0])
}

// GetItemValueInteger returns the first value coerced to int, or 0.
func (d *ItemCollection) GetItemValueInteger(name string) int {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return 0
	}
	i, _ := toInt(list[0])
	return i
}

// GetItemValueLong returns the first value coerced to int64, or 0.
func (d *ItemCollection) GetItemValueLong(name string) int64 {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return 0
	}
	i, _ := toInt64(list[0])
	return i
}

// GetItemValueDouble returns the first value coerced to float64, or 0.
func (d *ItemCollection) GetItemValueDouble(name string) float64 {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return 0
	}
	f, _ := toFloat(list[0])
	return f
}

// GetItemValueBoolean returns the first value coerced to bool, or false.
func (d *ItemCollection) GetItemValueBoolean(name string) bool {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return false
	}
	return toBool(list[0])
}

// GetItemValueDate returns the first value if it is a timestamp, or the
// zero time.
func (d *ItemCollection) GetItemValueDate(name string) time.Time {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return time.Time{}
	}
	if t, ok := list[0].(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetItemValueStringList returns all values coerced to strings.
func (d *ItemCollection) GetItemValueStringList(name string) []string {
	list := d.GetItemValue(name)
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, toString(v))
	}
	return out
}

// GetItemValueIntegerList returns all values coerced to ints, skipping
// non-numeric entries.
func (d *ItemCollection) GetItemValueIntegerList(name string) []int {
	list := d.GetItemValue(name)
	out := make([]int, 0, len(list))
	for _, v := range list {
		if i, ok := toInt(v); ok {
			out = append(out, i)
		}
	}
	return out
}

// HasItem reports whether the item exists, accepting deprecated aliases.
func (d *ItemCollection) HasItem(name string) bool {
	name = foldName(name)
	if _, ok := d.items[name]; ok {
		return true
	}
	if alias, ok := aliasPairs[name]; ok {
		_, found := d.items[alias]
		return found
	}
	return false
}

// IsItemEmpty reports whether the item is missing or holds no values.
func (d *ItemCollection) IsItemEmpty(name string) bool {
	return len(d.GetItemValue(name)) == 0
}

// IsItemValueNumeric reports whether the first value of the item is a
// numeric type. Used by the rule engine's legacy script converter.
func (d *ItemCollection) IsItemValueNumeric(name string) bool {
	list := d.GetItemValue(name)
	return len(list) > 0 && isNumeric(list[0])
}

// IsItemValueInteger reports whether the first value is an int.
func (d *ItemCollection) IsItemValueInteger(name string) bool {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return false
	}
	_, ok := list[0].(int)
	return ok
}

// IsItemValueDouble reports whether the first value is a float64.
func (d *ItemCollection) IsItemValueDouble(name string) bool {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return false
	}
	_, ok := list[0].(float64)
	return ok
}

// IsItemValueBoolean reports whether the first value is a bool.
func (d *ItemCollection) IsItemValueBoolean(name string) bool {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return false
	}
	_, ok := list[0].(bool)
	return ok
}

// IsItemValueDate reports whether the first value is a timestamp.
func (d *ItemCollection) IsItemValueDate(name string) bool {
	list := d.GetItemValue(name)
	if len(list) == 0 {
		return false
	}
	_, ok := list[0].(time.Time)
	return ok
}

// RemoveItem deletes an item and its deprecated alias.
func (d *ItemCollection) RemoveItem(name string) {
	name = foldName(name)
	delete(d.items, name)
	if alias, ok := aliasPairs[name]; ok {
		delete(d.items, alias)
	}
}

// PurgeItemValue removes duplicate and nil values from an item list,
// preserving first occurrence.
func (d *ItemCollection) PurgeItemValue(name string) {
	name = foldName(name)
	list, ok := d.items[name]
	if !ok {
		return
	}
	purged := make([]any, 0, len(list))
	for _, v := range list {
		if v == nil || containsValue(purged, v) {
			continue
		}
		purged = append(purged, v)
	}
	d.items[name] = purged
}

// ItemNames returns the sorted list of item names.
func (d *ItemCollection) ItemNames() []string {
	names := make([]string, 0, len(d.items))
	for name := range d.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllItems returns a deep copy of the full item map.
func (d *ItemCollection) AllItems() map[string][]any {
	out := make(map[string][]any, len(d.items))
	for name, list := range d.items {
		out[name] = deepCopyList(list)
	}
	return out
}

// Clone returns a full structural deep copy. No sub-structure is shared
// with the source.
func (d *ItemCollection) Clone() *ItemCollection {
	clone := New()
	for name, list := range d.items {
		clone.items[name] = deepCopyList(list)
	}
	return clone
}

// CloneItems returns a deep copy reduced to the given item names.
func (d *ItemCollection) CloneItems(names ...string) *ItemCollection {
	clone := New()
	for _, name := range names {
		name = foldName(name)
		if list, ok := d.items[name]; ok {
			clone.items[name] = deepCopyList(list)
		}
	}
	return clone
}

// Copy replaces all items with a deep copy of the source's items.
func (d *ItemCollection) Copy(source *ItemCollection) {
	d.items = make(map[string][]any, len(source.items))
	for name, list := range source.items {
		d.items[name] = deepCopyList(list)
	}
}

// Merge copies every item of the source into this collection, replacing
// existing items of the same name.
func (d *ItemCollection) Merge(source *ItemCollection) {
	for name, list := range source.items {
		d.items[name] = deepCopyList(list)
	}
}

// Equals compares two collections structurally.
func (d *ItemCollection) Equals(other *ItemCollection) bool {
	if other == nil || len(d.items) != len(other.items) {
		return false
	}
	for name, list := range d.items {
		if !listEquals(list, other.items[name]) {
			return false
		}
	}
	return true
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
