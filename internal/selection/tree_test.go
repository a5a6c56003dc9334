package selection

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Build("/media", []Entry{
		{Path: "/media/b/two.mkv"},
		{Path: "/media/b/one.mp4"},
		{Path: "/media/a/clip.mov"},
		{Path: "/media/a/deep/x.avi"},
		{Path: "/media/empty", IsDir: true},
		{Path: "/media/root.mp4"},
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree
}

// assertInvariant checks every directory against its children.
func assertInvariant(t *testing.T, tree *Tree) {
	t.Helper()
	tree.mu.RLock()
	defer tree.mu.RUnlock()
	for path, node := range tree.index {
		if !node.IsDir {
			continue
		}
		want := Unchecked
		if len(node.Children) > 0 {
			checked, unchecked := 0, 0
			for _, child := range node.Children {
				switch child.State {
				case Checked:
					checked++
				case Unchecked:
					unchecked++
				}
			}
			switch {
			case checked == len(node.Children):
				want = Checked
			case unchecked == len(node.Children):
				want = Unchecked
			default:
				want = Partial
			}
		}
		if node.State != want {
			t.Fatalf("directory %s is %s, children imply %s", path, node.State, want)
		}
	}
}

func stateOf(t *testing.T, tree *Tree, path string) State {
	t.Helper()
	view, ok := tree.Node(path)
	if !ok {
		t.Fatalf("missing node %s", path)
	}
	return view.State
}

func TestBuildOrdersChildrenByPath(t *testing.T) {
	tree := sampleTree(t)
	view, _ := tree.Node("/media")
	want := []string{"/media/a", "/media/b", "/media/empty", "/media/root.mp4"}
	if !slices.Equal(view.Children, want) {
		t.Fatalf("children = %v, want %v", view.Children, want)
	}
	assertInvariant(t, tree)
}

func TestToggleLeafUpdatesAncestors(t *testing.T) {
	tree := sampleTree(t)
	changed, err := tree.Toggle("/media/a/deep/x.avi", Checked)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	want := []string{"/media/a/deep/x.avi", "/media/a/deep", "/media/a", "/media"}
	if !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if got := stateOf(t, tree, "/media/a/deep"); got != Checked {
		t.Fatalf("deep = %s, want checked", got)
	}
	if got := stateOf(t, tree, "/media/a"); got != Partial {
		t.Fatalf("a = %s, want partial", got)
	}
	assertInvariant(t, tree)

	changed, err = tree.Toggle("/media/a/clip.mov", Checked)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := stateOf(t, tree, "/media/a"); got != Checked {
		t.Fatalf("a = %s, want checked", got)
	}
	// root stays partial, so the walk stops below it
	if slices.Contains(changed, "/media") {
		t.Fatalf("root should not be reported as changed: %v", changed)
	}
	assertInvariant(t, tree)
}

func TestToggleDirectorySetsDescendants(t *testing.T) {
	tree := sampleTree(t)
	if _, err := tree.Toggle("/media", Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	// the empty directory keeps root from being fully checked
	if got := stateOf(t, tree, "/media"); got != Partial {
		t.Fatalf("root = %s, want partial", got)
	}
	if got := stateOf(t, tree, "/media/empty"); got != Unchecked {
		t.Fatalf("empty directory = %s, want unchecked", got)
	}
	if got := stateOf(t, tree, "/media/b"); got != Checked {
		t.Fatalf("b = %s, want checked", got)
	}
	assertInvariant(t, tree)

	if _, err := tree.Toggle("/media/b", Unchecked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	for _, path := range []string{"/media/b/one.mp4", "/media/b/two.mkv"} {
		if got := stateOf(t, tree, path); got != Unchecked {
			t.Fatalf("%s = %s, want unchecked", path, got)
		}
	}
	assertInvariant(t, tree)
}

func TestToggleWholeTreeWithoutEmptyDirs(t *testing.T) {
	tree, err := Build("/v", []Entry{{Path: "/v/a.mp4"}, {Path: "/v/s/b.mp4"}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := tree.Toggle("/v", Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := stateOf(t, tree, "/v"); got != Checked {
		t.Fatalf("root = %s, want checked", got)
	}
	changed, err := tree.Toggle("/v", Checked)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("re-toggling to the same state should change nothing, got %v", changed)
	}
}

func TestToggleRejectsPartialAndUnknownPaths(t *testing.T) {
	tree := sampleTree(t)
	if _, err := tree.Toggle("/media/a", Partial); err == nil {
		t.Fatal("expected error when setting partial directly")
	}
	if _, err := tree.Toggle("/elsewhere.mp4", Checked); !errors.Is(err, ErrUnknownPath) {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
}

func TestEveryLeafToggleKeepsInvariant(t *testing.T) {
	tree := sampleTree(t)
	leaves := []string{"/media/root.mp4", "/media/b/one.mp4", "/media/a/deep/x.avi", "/media/b/two.mkv", "/media/a/clip.mov"}
	for i, leaf := range leaves {
		state := Checked
		if i%2 == 1 {
			state = Unchecked
		}
		for _, s := range []State{state, Checked, Unchecked, state} {
			if _, err := tree.Toggle(leaf, s); err != nil {
				t.Fatalf("Toggle %s: %v", leaf, err)
			}
			assertInvariant(t, tree)
		}
	}
}

func TestCollectCheckedDepthFirstAndRestartable(t *testing.T) {
	tree := sampleTree(t)
	for _, path := range []string{"/media/root.mp4", "/media/b/two.mkv", "/media/a/deep/x.avi", "/media/b/one.mp4"} {
		if _, err := tree.Toggle(path, Checked); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
	}
	want := []string{"/media/a/deep/x.avi", "/media/b/one.mp4", "/media/b/two.mkv", "/media/root.mp4"}
	first := slices.Collect(tree.CollectChecked())
	second := slices.Collect(tree.CollectChecked())
	if !slices.Equal(first, want) {
		t.Fatalf("first pass = %v, want %v", first, want)
	}
	if !slices.Equal(second, want) {
		t.Fatalf("second pass = %v, want %v", second, want)
	}
}

func TestCollectCheckedStopsEarly(t *testing.T) {
	tree := sampleTree(t)
	if _, err := tree.Toggle("/media", Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	var got []string
	for path := range tree.CollectChecked() {
		got = append(got, path)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 paths, got %v", got)
	}
	// the lock must have been released
	if _, err := tree.Toggle("/media", Unchecked); err != nil {
		t.Fatalf("Toggle after early stop: %v", err)
	}
}

func TestInvertLeaves(t *testing.T) {
	tree := sampleTree(t)
	if _, err := tree.Toggle("/media/b", Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	tree.InvertLeaves()
	got := slices.Collect(tree.CollectChecked())
	want := []string{"/media/a/clip.mov", "/media/a/deep/x.avi", "/media/root.mp4"}
	if !slices.Equal(got, want) {
		t.Fatalf("after invert = %v, want %v", got, want)
	}
	if stateOf(t, tree, "/media/empty") != Unchecked {
		t.Fatal("empty directory must stay unchecked")
	}
	assertInvariant(t, tree)
}

func TestBuildPreservesPreviousStates(t *testing.T) {
	tree := sampleTree(t)
	if _, err := tree.Toggle("/media/b/one.mp4", Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	rebuilt, err := Build("/media", []Entry{
		{Path: "/media/b/one.mp4"},
		{Path: "/media/b/new.mp4"},
	}, tree.States())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := stateOf(t, rebuilt, "/media/b/one.mp4"); got != Checked {
		t.Fatalf("preserved state = %s, want checked", got)
	}
	if got := stateOf(t, rebuilt, "/media/b"); got != Partial {
		t.Fatalf("b = %s, want partial", got)
	}
	checked, total := rebuilt.Counts()
	if checked != 1 || total != 2 {
		t.Fatalf("counts = %d/%d, want 1/2", checked, total)
	}
}

func TestBuildRejectsOutsidePaths(t *testing.T) {
	if _, err := Build("/media", []Entry{{Path: "/other/x.mp4"}}, nil); err == nil {
		t.Fatal("expected error for path outside root")
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"show/ep1.mkv",
		"show/ep1_comp.mkv",
		"show/ep2.MP4",
		"show/notes.txt",
		"movie.mov",
		"movie.remux.tmp.mov",
		"old.mp4.bak",
		".hidden/skip.mp4",
	}
	for _, name := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	tree, err := Scan(root, ScanOptions{
		Extensions:   []string{".mp4", ".avi", ".mov", ".mkv"},
		OutputSuffix: "_comp",
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := tree.Toggle(root, Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	got := slices.Collect(tree.CollectChecked())
	want := []string{
		filepath.Join(root, "movie.mov"),
		filepath.Join(root, "show", "ep1.mkv"),
		filepath.Join(root, "show", "ep2.MP4"),
	}
	if !slices.Equal(got, want) {
		t.Fatalf("checked = %v, want %v", got, want)
	}
	if _, ok := tree.Node(filepath.Join(root, "empty")); !ok {
		t.Fatal("expected empty directory in tree")
	}
	if _, ok := tree.Node(filepath.Join(root, ".hidden")); ok {
		t.Fatal("hidden directory should be skipped")
	}
}

func TestIsWorkFile(t *testing.T) {
	cases := map[string]bool{
		"/v/movie.mp4":            false,
		"/v/movie_comp.mp4":       true,
		"/v/movie.mp4.bak":        true,
		"/v/movie.remux.tmp.mp4":  true,
		"/v/comp_movie.mp4":       false,
		"/v/movie_compressed.mp4": false,
		"/v/movie.vidshrink.mp4":  true,
	}
	for path, want := range cases {
		if got := IsWorkFile(path, "_comp"); got != want {
			t.Errorf("IsWorkFile(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestScanSkipsFallbackNamedOutputs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"clip.mp4", "clip.vidshrink.mp4", "trip/day.mkv", "trip/day.vidshrink.mkv"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := Scan(root, ScanOptions{Extensions: []string{".mp4", ".mkv"}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := tree.Toggle(root, Checked); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	got := slices.Collect(tree.CollectChecked())
	want := []string{filepath.Join(root, "clip.mp4"), filepath.Join(root, "trip", "day.mkv")}
	if !slices.Equal(got, want) {
		t.Fatalf("checked = %v, want %v", got, want)
	}
}

func TestScanSkipsOutputsNestedInSourceTree(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"clip.mp4", "out/clip_comp.mp4"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := Scan(root, ScanOptions{Extensions: []string{".mp4"}, OutputSuffix: "_comp"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	checked, total := tree.Counts()
	if total != 1 || checked != 0 {
		t.Fatalf("counts = %d/%d, want 0/1", checked, total)
	}
}
