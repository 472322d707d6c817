package core

import (
	"path/filepath"
	"testing"
)

func TestFiletree_Plan(t *testing.T) {
	rootDir := setupNestedTestDir(t, map[string]interface{}{
		"photos": map[string]interface{}{
			"2024": map[string]interface{}{
				"beach.jpg": "jpg",
			},
			"cover.png": "png",
		},
		"notes.txt": "hello",
	})

	tree, err := BuildFiletree([]ParsedPath{
		{FullPath: filepath.Join(rootDir, "photos"), Kind: PathDir},
		{FullPath: filepath.Join(rootDir, "notes.txt"), Kind: PathFile, Size: 5},
	})
	if err != nil {
		t.Fatal(err)
	}

	steps := tree.Plan()

	want := []struct {
		kind   StepKind
		name   string
		parent int
	}{
		{StepFolder, "photos", NoParent},
		{StepFolder, "2024", 0},
		{StepFile, "beach.jpg", 1},
		{StepFile, "cover.png", 0},
		{StepFile, "notes.txt", NoParent},
	}

	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d: %+v", len(want), len(steps), steps)
	}
	for i, w := range want {
		s := steps[i]
		if s.Kind != w.kind || s.Name != w.name || s.Parent != w.parent {
			t.Errorf("step %d: expected %v %s under %d, got %v %s under %d",
				i, w.kind, w.name, w.parent, s.Kind, s.Name, s.Parent)
		}
	}

	for i, s := range steps {
		if s.Parent != NoParent && (s.Parent >= i || steps[s.Parent].Kind != StepFolder) {
			t.Errorf("step %d refers to %d, which is not an earlier folder step", i, s.Parent)
		}
	}

	if steps[4].Size != 5 {
		t.Errorf("expected notes.txt size 5, got %d", steps[4].Size)
	}
}
