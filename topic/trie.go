// Package topic matches topic names against subscribed topic filters.
package topic

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrInvalidFilter = errors.New("topic: invalid topic filter")

type node[T any] struct {
	path  string // one level of the filter
	value T
	set   bool // a filter ends at this node
	next  map[string]*node[T]
}

func newNode[T any](path string) *node[T] {
	return &node[T]{path: path, next: make(map[string]*node[T])}
}

// MemoryTrie maps topic filters to values and finds every filter matching a
// topic name. It is safe for concurrent use.
type MemoryTrie[T any] struct {
	m    sync.RWMutex
	root *node[T] // 主题过滤树
	size int
}

func NewMemoryTrie[T any]() *MemoryTrie[T] {
	return &MemoryTrie[T]{root: newNode[T]("")}
}

// ValidFilter checks the wildcard rules: '#' only as the last level and
// '+' and '#' only as a whole level.
func ValidFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidFilter, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// Subscribe stores v under filter, replacing the value of an identical filter.
func (m *MemoryTrie[T]) Subscribe(filter string, v T) error {
	if err := ValidFilter(filter); err != nil {
		return err
	}
	m.m.Lock()
	defer m.m.Unlock()
	current := m.root
	for _, subPath := range strings.Split(filter, "/") {
		next, ok := current.next[subPath]
		if !ok {
			next = newNode[T](subPath)
			current.next[subPath] = next
		}
		current = next
	}
	if !current.set {
		m.size++
	}
	current.value, current.set = v, true
	return nil
}

// Unsubscribe removes filter and prunes the nodes left without filters.
// It reports whether filter was subscribed.
func (m *MemoryTrie[T]) Unsubscribe(filter string) bool {
	m.m.Lock()
	defer m.m.Unlock()
	levels := strings.Split(filter, "/")
	trail := []*node[T]{m.root}
	current := m.root
	for _, subPath := range levels {
		next, ok := current.next[subPath]
		if !ok {
			return false
		}
		trail = append(trail, next)
		current = next
	}
	if !current.set {
		return false
	}
	var zero T
	current.value, current.set = zero, false
	m.size--
	for i := len(trail) - 1; i > 0; i-- {
		n := trail[i]
		if n.set || len(n.next) != 0 {
			break
		}
		delete(trail[i-1].next, n.path)
	}
	return true
}

// Find returns the values of every filter matching topicName. Filters
// starting with a wildcard do not match topic names starting with '$'.
func (m *MemoryTrie[T]) Find(topicName string) []T {
	m.m.RLock()
	defer m.m.RUnlock()
	var found []T
	levels := strings.Split(topicName, "/")
	m.root.find(levels, 0, strings.HasPrefix(topicName, "$"), &found)
	return found
}

func (n *node[T]) find(levels []string, i int, system bool, found *[]T) {
	wildcards := !(system && i == 0)
	if wildcards {
		// "a/#" also matches "a"
		if next, ok := n.next["#"]; ok && next.set {
			*found = append(*found, next.value)
		}
	}
	if i == len(levels) {
		if n.set {
			*found = append(*found, n.value)
		}
		return
	}
	if next, ok := n.next[levels[i]]; ok {
		next.find(levels, i+1, system, found)
	}
	if next, ok := n.next["+"]; ok && wildcards {
		next.find(levels, i+1, system, found)
	}
}

// Len returns the number of subscribed filters.
func (m *MemoryTrie[T]) Len() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.size
}
