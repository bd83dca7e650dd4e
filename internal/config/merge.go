package config

// Merge deep-merges src into dst additively:
//   - subtrees present on both sides are merged recursively
//   - lists present on both sides are concatenated (dst first)
//   - any other src value, including an explicit null, replaces dst
//
// src is never aliased; merged values are deep copies.
func Merge(dst, src *Tree) {
	if dst == nil || src == nil {
		return
	}
	for _, k := range src.keys {
		sv := src.values[k]
		if dv, ok := dst.values[k]; ok {
			if dt, ok := dv.(*Tree); ok {
				if st, ok := sv.(*Tree); ok {
					Merge(dt, st)
					continue
				}
			}
			if dl, ok := dv.([]any); ok {
				if sl, ok := sv.([]any); ok {
					merged := make([]any, 0, len(dl)+len(sl))
					merged = append(merged, dl...)
					for _, item := range sl {
						merged = append(merged, cloneValue(item))
					}
					dst.values[k] = merged
					continue
				}
			}
		}
		dst.Set(k, cloneValue(sv))
	}
}
