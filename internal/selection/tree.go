package selection

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// State is the check state of a node.
type State int

const (
	Unchecked State = iota
	Checked
	Partial
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checked:
		return "checked"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrUnknownPath is returned when a path is not part of the tree.
var ErrUnknownPath = errors.New("path not in selection tree")

// Entry describes one filesystem entry fed to Build.
type Entry struct {
	Path  string
	IsDir bool
}

// Node is a file or directory in the tree. Nodes are owned by their Tree and
// must only be read while the tree's lock is held; use Tree.Node for a copy.
type Node struct {
	Path     string
	IsDir    bool
	State    State
	Children []*Node

	parent *Node
}

// NodeView is a read-only snapshot of a node.
type NodeView struct {
	Path     string
	IsDir    bool
	State    State
	Children []string
}

// Tree is the selection model. Mutations take the write lock; reads may run
// concurrently with each other.
type Tree struct {
	mu    sync.RWMutex
	root  *Node
	index map[string]*Node
}

// Build assembles a tree rooted at root. Entries outside root are rejected.
// Directories between root and an entry are created implicitly. previous
// carries file states from an earlier tree; files absent from it start
// Unchecked.
func Build(root string, entries []Entry, previous map[string]State) (*Tree, error) {
	root = filepath.Clean(root)
	t := &Tree{
		root:  &Node{Path: root, IsDir: true},
		index: make(map[string]*Node),
	}
	t.index[root] = t.root

	for _, entry := range entries {
		path := filepath.Clean(entry.Path)
		if path == root {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("build selection: %s is outside %s", path, root)
		}
		parent := t.ensureDir(filepath.Dir(path))
		if existing, ok := t.index[path]; ok {
			if existing.IsDir != entry.IsDir {
				return nil, fmt.Errorf("build selection: %s listed as both file and directory", path)
			}
			continue
		}
		node := &Node{Path: path, IsDir: entry.IsDir, parent: parent}
		if !entry.IsDir {
			if state, ok := previous[path]; ok && state == Checked {
				node.State = Checked
			}
		}
		parent.Children = append(parent.Children, node)
		t.index[path] = node
	}

	sortChildren(t.root)
	recomputeSubtree(t.root, nil)
	return t, nil
}

func (t *Tree) ensureDir(path string) *Node {
	if node, ok := t.index[path]; ok {
		return node
	}
	parent := t.ensureDir(filepath.Dir(path))
	node := &Node{Path: path, IsDir: true, parent: parent}
	parent.Children = append(parent.Children, node)
	t.index[path] = node
	return node
}

func sortChildren(node *Node) {
	slices.SortFunc(node.Children, func(a, b *Node) int {
		return strings.Compare(a.Path, b.Path)
	})
	for _, child := range node.Children {
		if child.IsDir {
			sortChildren(child)
		}
	}
}

// Root returns the root directory path.
func (t *Tree) Root() string {
	return t.root.Path
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// Node returns a snapshot of the node at path.
func (t *Tree) Node(path string) (NodeView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.index[filepath.Clean(path)]
	if !ok {
		return NodeView{}, false
	}
	view := NodeView{Path: node.Path, IsDir: node.IsDir, State: node.State}
	for _, child := range node.Children {
		view.Children = append(view.Children, child.Path)
	}
	return view, true
}

// Toggle sets the node at path and all of its descendants to state, then
// recomputes every ancestor. Only Checked and Unchecked can be set directly.
// The returned paths are the nodes whose state changed, descendants first
// and the root last.
func (t *Tree) Toggle(path string, state State) ([]string, error) {
	if state != Checked && state != Unchecked {
		return nil, fmt.Errorf("toggle %s: cannot set %s directly", path, state)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.index[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("toggle %s: %w", path, ErrUnknownPath)
	}
	var changed []string
	setSubtree(node, state, &changed)
	recomputeAncestors(node.parent, &changed)
	return changed, nil
}

// setSubtree assigns state to every file under node and rederives the
// directories on the way back up. Empty directories stay Unchecked.
func setSubtree(node *Node, state State, changed *[]string) {
	if !node.IsDir {
		if node.State != state {
			node.State = state
			*changed = append(*changed, node.Path)
		}
		return
	}
	for _, child := range node.Children {
		setSubtree(child, state, changed)
	}
	updateDir(node, changed)
}

// recomputeAncestors walks from node to the root, stopping early once a
// directory's derived state is unchanged since nothing above it can change.
func recomputeAncestors(node *Node, changed *[]string) {
	for ; node != nil; node = node.parent {
		if !updateDir(node, changed) {
			return
		}
	}
}

func recomputeSubtree(node *Node, changed *[]string) {
	if !node.IsDir {
		return
	}
	for _, child := range node.Children {
		recomputeSubtree(child, changed)
	}
	updateDir(node, changed)
}

func updateDir(node *Node, changed *[]string) bool {
	next := derive(node.Children)
	if next == node.State {
		return false
	}
	node.State = next
	if changed != nil {
		*changed = append(*changed, node.Path)
	}
	return true
}

func derive(children []*Node) State {
	if len(children) == 0 {
		return Unchecked
	}
	allChecked, allUnchecked := true, true
	for _, child := range children {
		switch child.State {
		case Checked:
			allUnchecked = false
		case Unchecked:
			allChecked = false
		default:
			return Partial
		}
		if !allChecked && !allUnchecked {
			return Partial
		}
	}
	if allChecked {
		return Checked
	}
	return Unchecked
}

// CollectChecked yields the paths of checked files depth-first, children in
// path order. The sequence may be ranged over any number of times; each pass
// holds the read lock until it finishes or the caller stops early.
func (t *Tree) CollectChecked() iter.Seq[string] {
	return func(yield func(string) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		walkChecked(t.root, yield)
	}
}

func walkChecked(node *Node, yield func(string) bool) bool {
	if !node.IsDir {
		if node.State == Checked {
			return yield(node.Path)
		}
		return true
	}
	if node.State == Unchecked {
		return true
	}
	for _, child := range node.Children {
		if !walkChecked(child, yield) {
			return false
		}
	}
	return true
}

// InvertLeaves flips every file between Checked and Unchecked and rederives
// all directories. Empty directories are not leaves of the selection and
// stay Unchecked.
func (t *Tree) InvertLeaves() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []string
	invert(t.root, &changed)
	return changed
}

func invert(node *Node, changed *[]string) {
	if !node.IsDir {
		if node.State == Checked {
			node.State = Unchecked
		} else {
			node.State = Checked
		}
		*changed = append(*changed, node.Path)
		return
	}
	for _, child := range node.Children {
		invert(child, changed)
	}
	updateDir(node, changed)
}

// States returns the state of every file, suitable for Build's previous
// argument after a rescan.
func (t *Tree) States() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	states := make(map[string]State)
	for path, node := range t.index {
		if !node.IsDir {
			states[path] = node.State
		}
	}
	return states
}

// Counts returns the number of checked files and the total number of files.
func (t *Tree) Counts() (checked, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, node := range t.index {
		if node.IsDir {
			continue
		}
		total++
		if node.State == Checked {
			checked++
		}
	}
	return checked, total
}
