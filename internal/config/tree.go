package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// Tree is an insertion-ordered map of configuration values.
//
// Values are nil, bool, int, float64, string, []any or *Tree. Floats that
// appear in YAML are kept as their literal text so that versions like 3.10
// survive a round trip.
type Tree struct {
	keys   []string
	values map[string]any
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{values: map[string]any{}}
}

// TreeOf builds a tree from alternating key/value arguments.
func TreeOf(kv ...any) *Tree {
	t := NewTree()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return t
}

// Len returns the number of keys.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns a copy of the keys in insertion order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.keys...)
}

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	if t == nil {
		return false
	}
	_, ok := t.values[key]
	return ok
}

// Get returns the value for key.
func (t *Tree) Get(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Value returns the value for key or nil.
func (t *Tree) Value(key string) any {
	v, _ := t.Get(key)
	return v
}

// String returns the string form of a scalar value, or "" for missing keys,
// nil, lists and subtrees.
func (t *Tree) String(key string) string {
	switch v := t.Value(key).(type) {
	case nil, []any, *Tree:
		return ""
	default:
		return tags.Stringify(v)
	}
}

// Tree returns the subtree at key, or nil when the value is not a tree.
func (t *Tree) Tree(key string) *Tree {
	sub, _ := t.Value(key).(*Tree)
	return sub
}

// List returns the list at key, or nil when the value is not a list.
func (t *Tree) List(key string) []any {
	l, _ := t.Value(key).([]any)
	return l
}

// Truthy reports whether the value at key counts as set.
func (t *Tree) Truthy(key string) bool {
	return Truthy(t.Value(key))
}

// Set stores value under key, keeping the original position of existing keys.
func (t *Tree) Set(key string, value any) {
	if t.values == nil {
		t.values = map[string]any{}
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = normalizeValue(value)
}

// Delete removes key and returns its previous value.
func (t *Tree) Delete(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	if !ok {
		return nil, false
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Each calls fn for every key in order.
func (t *Tree) Each(fn func(key string, value any)) {
	if t == nil {
		return
	}
	for _, k := range t.keys {
		fn(k, t.values[k])
	}
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	c := NewTree()
	for _, k := range t.keys {
		c.Set(k, cloneValue(t.values[k]))
	}
	return c
}

// Vars returns the string form of every scalar top-level value, for use with Format.
func (t *Tree) Vars() map[string]string {
	vars := make(map[string]string, t.Len())
	t.Each(func(k string, v any) {
		switch v.(type) {
		case []any, *Tree:
			return
		}
		vars[k] = tags.Stringify(v)
	})
	return vars
}

// ToMap converts the tree into plain Go maps and slices.
func (t *Tree) ToMap() map[string]any {
	m := make(map[string]any, t.Len())
	t.Each(func(k string, v any) {
		m[k] = plainValue(v)
	})
	return m
}

// UnmarshalYAML implements yaml.Unmarshaler, preserving key order.
func (t *Tree) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeNode(node)
	if err != nil {
		return err
	}
	tree, ok := v.(*Tree)
	if !ok {
		if v == nil {
			*t = *NewTree()
			return nil
		}
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, node.ShortTag())
	}
	*t = *tree
	return nil
}

// MarshalYAML implements yaml.Marshaler, preserving key order.
func (t *Tree) MarshalYAML() (any, error) {
	return encodeValue(t)
}

// Truthy reports whether a config value counts as set.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case *Tree:
		return val.Len() > 0
	default:
		return true
	}
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []string:
		l := make([]any, len(val))
		for i, s := range val {
			l[i] = s
		}
		return l
	case map[string]any:
		t := NewTree()
		for _, k := range sortedKeys(val) {
			t.Set(k, val[k])
		}
		return t
	case map[string]string:
		t := NewTree()
		for _, k := range sortedKeys(val) {
			t.Set(k, val[k])
		}
		return t
	case int64:
		return int(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Tree:
		return val.Clone()
	case []any:
		l := make([]any, len(val))
		for i, item := range val {
			l[i] = cloneValue(item)
		}
		return l
	default:
		return v
	}
}

func plainValue(v any) any {
	switch val := v.(type) {
	case *Tree:
		return val.ToMap()
	case []any:
		l := make([]any, len(val))
		for i, item := range val {
			l[i] = plainValue(item)
		}
		return l
	default:
		return v
	}
}

func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeNode(node.Content[0])
	case yaml.AliasNode:
		return decodeNode(node.Alias)
	case yaml.MappingNode:
		t := NewTree()
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := strings.Trim(node.Content[i].Value, `"`)
			v, err := decodeNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			t.Set(key, v)
		}
		return t, nil
	case yaml.SequenceNode:
		l := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			l = append(l, v)
		}
		return l, nil
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int":
			var i int
			if err := node.Decode(&i); err != nil {
				return nil, err
			}
			return i, nil
		default:
			return node.Value, nil
		}
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
	}
}

func encodeValue(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case *Tree:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if val == nil {
			return node, nil
		}
		for _, k := range val.keys {
			child, err := encodeValue(val.values[k])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			child, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(val); err != nil {
			return nil, err
		}
		return node, nil
	}
}
