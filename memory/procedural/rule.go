package procedural

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/becomeliminal/cogbase/memory"
)

// Value is a condition value: a single string or a list of strings.
// Matching treats both as a set; the original shape is kept for JSON.
type Value struct {
	items []string
	list  bool
}

// String returns a single-string value.
func String(s string) Value {
	return Value{items: []string{s}}
}

// List returns a list value.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{items: cp, list: true}
}

// NormalizeValue converts a decoded JSON or YAML value into a Value.
// Only strings and lists of strings are supported.
func NormalizeValue(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case []string:
		return List(x...), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: unsupported value type %T in list", memory.ErrValidation, item)
			}
			items = append(items, s)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", memory.ErrValidation, v)
	}
}

// Items returns the value's elements.
func (v Value) Items() []string {
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// IsList reports whether the value was given as a list.
func (v Value) IsList() bool { return v.list }

// set returns the distinct elements.
func (v Value) set() map[string]struct{} {
	s := make(map[string]struct{}, len(v.items))
	for _, item := range v.items {
		s[item] = struct{}{}
	}
	return s
}

// key is a canonical form of the element set, so equal sets compare equal.
func (v Value) key() string {
	s := v.set()
	items := make([]string, 0, len(s))
	for item := range s {
		items = append(items, item)
	}
	sort.Strings(items)
	return strings.Join(items, "\x00")
}

// Overlaps reports whether v and other share an element.
func (v Value) Overlaps(other Value) bool {
	s := other.set()
	for _, item := range v.items {
		if _, ok := s[item]; ok {
			return true
		}
	}
	return false
}

func (v Value) String() string {
	return strings.Join(v.items, ", ")
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.list && len(v.items) == 1 {
		return json.Marshal(v.items[0])
	}
	items := v.items
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nv, err := NormalizeValue(raw)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// Conditions maps a condition key to its value.
type Conditions map[string]Value

// ConditionsFrom normalizes a generic mapping into Conditions.
func ConditionsFrom(m map[string]any) (Conditions, error) {
	out := make(Conditions, len(m))
	for k, v := range m {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Keys returns the condition keys in sorted order.
func (c Conditions) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cue is the condition mapping a rule is matched against.
type Cue = Conditions

// Rule is a procedural rule. Rules are immutable once added.
type Rule struct {
	RigidConditions    Conditions `json:"rigid_conditions"`
	FlexibleConditions Conditions `json:"flexible_conditions,omitempty"`
	Actions            []string   `json:"actions"`

	// Weights align with the rigid condition keys in sorted order.
	// Nil means weight 1 for every condition.
	Weights []float64 `json:"weights,omitempty"`

	Priority int `json:"priority"`
}

// Validate checks the rule's shape.
func (r Rule) Validate() error {
	if r.Weights != nil && len(r.Weights) != len(r.RigidConditions) {
		return fmt.Errorf("%w: %d weights for %d rigid conditions", memory.ErrValidation, len(r.Weights), len(r.RigidConditions))
	}
	for _, w := range r.Weights {
		if w < 0 {
			return fmt.Errorf("%w: negative weight %v", memory.ErrValidation, w)
		}
	}
	return nil
}

// conditionMet reports whether the cue satisfies one rigid condition: the
// cue has the key and its values overlap the rule's.
func conditionMet(key string, v Value, cue Cue) bool {
	cv, ok := cue[key]
	return ok && v.Overlaps(cv)
}

// Matches reports whether every rigid condition is contained in the cue.
func (r Rule) Matches(cue Cue) bool {
	for k, v := range r.RigidConditions {
		if !conditionMet(k, v, cue) {
			return false
		}
	}
	return true
}

// weight returns the weight of the i-th rigid key in sorted order.
func (r Rule) weight(i int) float64 {
	if r.Weights == nil {
		return 1
	}
	return r.Weights[i]
}

// Describe renders the rule's conditions as sorted "key: values" lines,
// rigid first.
func (r Rule) Describe() string {
	return renderConditions(r.RigidConditions) + renderConditions(r.FlexibleConditions)
}

func renderConditions(c Conditions) string {
	var b strings.Builder
	for _, k := range c.Keys() {
		fmt.Fprintf(&b, "%s: %s\n", k, c[k])
	}
	return b.String()
}
