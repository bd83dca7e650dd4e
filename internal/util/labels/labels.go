package labels

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// Label keys and values shared by every resource the tool creates.
const (
	KeyManagedBy = "managed-by"
	KeyType      = "type"

	ManagedBy = "alpine-cloud-images"

	TypeBuildServer = "build-server"
	TypeBuildSSHKey = "build-ssh-key"
	TypeImage       = "image"
)

// isoLayout is the timestamp layout used for image state tags.
const isoLayout = "2006-01-02T15:04:05.999999"

const maxValueLength = 63

// ImageKeys lists the tags persisted as labels, in a stable order.
var ImageKeys = []string{
	"project", "image_key", "cloud", "arch", "firmware", "bootstrap",
	"version", "release", "revision", "end_of_life",
	"built", "uploaded", "imported", "published", "released",
}

var timestampKeys = map[string]bool{
	"built": true, "uploaded": true, "imported": true, "published": true, "released": true,
}

// FromTags returns the label set for an image with the given tags.
// Tags that are absent or empty are omitted.
func FromTags(t tags.Tags) map[string]string {
	l := map[string]string{
		KeyManagedBy: ManagedBy,
		KeyType:      TypeImage,
	}
	for _, k := range ImageKeys {
		v := t.Get(k)
		if v == "" {
			continue
		}
		if timestampKeys[k] {
			if ts, err := time.Parse(isoLayout, v); err == nil {
				v = strconv.FormatInt(ts.Unix(), 10)
			}
		}
		l[k] = Sanitize(v)
	}
	return l
}

// ToTags reverses FromTags, turning unix timestamps back into ISO strings.
func ToTags(l map[string]string) tags.Tags {
	t := tags.Tags{}
	for _, k := range ImageKeys {
		v, ok := l[k]
		if !ok {
			continue
		}
		if timestampKeys[k] {
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				v = time.Unix(secs, 0).UTC().Format(isoLayout)
			}
		}
		t[k] = v
	}
	return t
}

// ForBuildResource returns labels for a temporary build resource of the given type.
func ForBuildResource(project, resourceType string) map[string]string {
	l := map[string]string{
		KeyManagedBy: ManagedBy,
		KeyType:      resourceType,
	}
	if project != "" {
		l["project"] = Sanitize(project)
	}
	return l
}

// Merge copies extra into a new map on top of base.
func Merge(base, extra map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range extra {
		result[k] = v
	}
	return result
}

// Selector builds a label selector matching all given labels.
// Keys are sorted so the selector is deterministic.
func Selector(l map[string]string) string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+l[k])
	}
	return strings.Join(parts, ",")
}

// Sanitize makes v a valid label value: disallowed characters become '_',
// leading and trailing non-alphanumerics are trimmed and the result is
// truncated to 63 characters.
func Sanitize(v string) string {
	b := []byte(v)
	for i, c := range b {
		if !isAlnum(c) && c != '-' && c != '_' && c != '.' {
			b[i] = '_'
		}
	}
	if len(b) > maxValueLength {
		b = b[:maxValueLength]
	}
	s := strings.TrimFunc(string(b), func(r rune) bool {
		return r > 127 || !isAlnum(byte(r))
	})
	return s
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
