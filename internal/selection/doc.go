// Package selection models the operator's choice of files as a tri-state tree
// over the source directory.
//
// Files carry the state the operator set. A directory's state is always
// derived from its children: Checked when it has children and all of them
// are Checked, Unchecked when all are Unchecked (an empty directory is
// Unchecked), Partial otherwise. Mutations return the paths whose state
// changed so presentation layers can react to change sets instead of
// re-reading the tree.
package selection
