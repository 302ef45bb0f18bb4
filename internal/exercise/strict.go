package exercise

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// route is the dotted path to a node inside the settings document, used
// to point validation errors at the offending node.
type route []string

func (r route) String() string {
	if len(r) == 0 {
		return "(root)"
	}
	return strings.Join(r, ".")
}

func (r route) child(key string) route {
	child := make(route, 0, len(r)+1)
	child = append(child, r...)
	return append(child, key)
}

func sorted(s mapset.Set[string]) []string {
	slice := s.ToSlice()
	sort.Strings(slice)
	return slice
}

// requireObject checks that node is a JSON object whose keys are exactly
// required plus any subset of optional. Both missing and unknown keys
// are rejected.
func requireObject(node any, r route, required, optional mapset.Set[string]) (map[string]any, error) {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, validationErrorf("setting %q must be a JSON object", r.String())
	}

	present := mapset.NewThreadUnsafeSet[string]()
	for key := range obj {
		present.Add(key)
	}

	missing := required.Difference(present)
	extra := present.Difference(required).Difference(optional)
	if missing.Cardinality() > 0 {
		return nil, validationErrorf("setting %q misses keys %v", r.String(), sorted(missing))
	}
	if extra.Cardinality() > 0 {
		return nil, validationErrorf("setting %q has unknown keys %v", r.String(), sorted(extra))
	}
	return obj, nil
}

func requireString(node any, r route, maxLen int) (string, error) {
	s, ok := node.(string)
	if !ok {
		return "", validationErrorf("setting %q must be a string", r.String())
	}
	if len(s) > maxLen {
		return "", validationErrorf("setting %q exceeds %d characters", r.String(), maxLen)
	}
	return s, nil
}

func requireInt(node any, r route) (int64, error) {
	num, ok := node.(json.Number)
	if !ok {
		return 0, validationErrorf("setting %q must be an integer", r.String())
	}
	v, err := num.Int64()
	if err != nil {
		return 0, validationErrorf("setting %q must be an integer, got %q", r.String(), num.String())
	}
	return v, nil
}

func requireStringList(node any, r route, maxLen int) ([]string, error) {
	list, ok := node.([]any)
	if !ok {
		return nil, validationErrorf("setting %q must be a JSON array", r.String())
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, err := requireString(item, r.child("["+strconv.Itoa(i)+"]"), maxLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
