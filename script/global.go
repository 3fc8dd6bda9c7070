package script

import "sync"

var (
	globalOnce     sync.Once
	globalRegistry *Registry
	globalTree     *Tree
)

// Global returns the process-wide registry and module tree. Embedders that
// need isolation create their own with NewRegistry and NewTree.
func Global() (*Registry, *Tree) {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
		globalTree = NewTree()
	})
	return globalRegistry, globalTree
}
