// Package tags holds the string-valued tag set attached to every image.
//
// Clouds store image state as tags (EC2 tags, Hetzner labels), so every value
// is a string. Tags convert to and from the Key/Value pair lists that cloud
// APIs use.
package tags

import (
	"fmt"
	"sort"
	"strconv"
)

// Default key and value names for AsList and FromList.
const (
	DefaultKeyName   = "Key"
	DefaultValueName = "Value"
)

// Tags maps tag names to string values.
type Tags map[string]string

// New builds Tags from arbitrary values, stringifying each of them.
func New(values map[string]any) Tags {
	t := make(Tags, len(values))
	for k, v := range values {
		t.Set(k, v)
	}
	return t
}

// Set stores the string form of value under key.
func (t Tags) Set(key string, value any) {
	t[key] = Stringify(value)
}

// Get returns the value for key, or "" when missing.
func (t Tags) Get(key string) string {
	return t[key]
}

// Has reports whether key is present.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Truthy reports whether key holds a value that counts as set.
// Empty strings, "None" and "false" are not set.
func (t Tags) Truthy(key string) bool {
	switch t[key] {
	case "", "None", "false", "False":
		return false
	}
	return true
}

// Keys returns the tag names in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsList returns the tags as a list of name/value maps, sorted by name.
func (t Tags) AsList(keyName, valueName string) []map[string]string {
	list := make([]map[string]string, 0, len(t))
	for _, k := range t.Keys() {
		list = append(list, map[string]string{keyName: k, valueName: t[k]})
	}
	return list
}

// FromList adds every name/value pair of list to t.
// Entries missing the name field are skipped.
func (t Tags) FromList(list []map[string]string, keyName, valueName string) {
	for _, entry := range list {
		k, ok := entry[keyName]
		if !ok {
			continue
		}
		t[k] = entry[valueName]
	}
}

// FromList builds Tags from a list of name/value maps.
func FromList(list []map[string]string, keyName, valueName string) Tags {
	t := make(Tags, len(list))
	t.FromList(list, keyName, valueName)
	return t
}

// Clone returns a copy of t.
func (t Tags) Clone() Tags {
	c := make(Tags, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Stringify renders a config value the way it is stored in a tag.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
