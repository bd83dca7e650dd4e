package config

import "strings"

// Format substitutes {name} placeholders in template with values from vars.
//
// "{{" and "}}" produce literal braces. Placeholders whose name is not in vars
// are left untouched, so a template can be formatted again once more values
// are known (for example the revision, which is only set by a state refresh).
func Format(template string, vars map[string]string) string {
	if !strings.ContainsAny(template, "{}") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			name := template[i+1 : i+1+end]
			if v, ok := vars[name]; ok && isPlaceholderName(name) {
				b.WriteString(v)
			} else {
				b.WriteString(template[i : i+end+2])
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// WithVars returns a copy of vars with extra entries added.
func WithVars(vars map[string]string, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(vars)+len(extra))
	for k, v := range vars {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func isPlaceholderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
