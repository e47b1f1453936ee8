package result

import (
	"maps"
	"slices"
)

// Cursor tells the client which index it got and how far it may go.
type Cursor struct {
	CurrentIndex int `json:"current_index"`
	LatestIndex  int `json:"latest_index"`
}

// Clamp returns requested clamped into [0, latest], latest if it is nil.
func Clamp(requested *int, latest int) int {
	if requested == nil {
		return latest
	}
	return max(0, min(*requested, latest))
}

// Latest scans the sorted keys backward from the highest one and returns the
// first index for which complete holds.
func Latest(keys []int, complete func(int) bool) (int, bool) {
	for i := len(keys) - 1; i >= 0; i-- {
		if complete(keys[i]) {
			return keys[i], true
		}
	}
	return 0, false
}

// Nearest returns the highest complete key <= target. When there is none it
// returns the lowest complete key > target.
func Nearest(keys []int, target int, complete func(int) bool) (int, bool) {
	pos, _ := slices.BinarySearch(keys, target+1)
	for i := pos - 1; i >= 0; i-- {
		if complete(keys[i]) {
			return keys[i], true
		}
	}
	for i := pos; i < len(keys); i++ {
		if complete(keys[i]) {
			return keys[i], true
		}
	}
	return 0, false
}

func sortedKeys[V any](m map[int]V) []int {
	return slices.Sorted(maps.Keys(m))
}

// cursor resolves the latest and the served index of the indexed entries in
// keys. ok is false when nothing is complete yet.
func cursor(keys []int, requested *int, complete func(int) bool) (Cursor, bool) {
	latest, ok := Latest(keys, complete)
	if !ok {
		return Cursor{}, false
	}
	current, _ := Nearest(keys, Clamp(requested, latest), complete)
	return Cursor{CurrentIndex: current, LatestIndex: latest}, true
}
