package paramstore

import "usecase-deployments/internal/domain"

// replacePaths lists config subtrees that an update replaces wholesale instead
// of merging. When the incoming config lacks a path, the path is dropped.
var replacePaths = [][]string{
	{"LlmParams", "ModelParams"},
}

// MergeConfigs deep-merges incoming over existing. Objects merge key by key,
// incoming wins on conflicts, and arrays and scalars are replaced. Neither
// argument is modified.
func MergeConfigs(existing, incoming map[string]any) map[string]any {
	merged := mergeMaps(domain.CloneConfig(existing), incoming)
	for _, path := range replacePaths {
		v, ok := lookup(incoming, path)
		if ok {
			setPath(merged, path, cloneAny(v))
		} else {
			deletePath(merged, path)
		}
	}
	return merged
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		srcMap, srcIsMap := sv.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = cloneAny(sv)
	}
	return dst
}

func cloneAny(v any) any {
	return domain.CloneConfig(map[string]any{"v": v})["v"]
}

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path []string, v any) {
	cur := m
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = v
}

func deletePath(m map[string]any, path []string) {
	cur := m
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, path[len(path)-1])
}
