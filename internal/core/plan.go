package core

type StepKind int

const (
	StepFolder StepKind = iota
	StepFile
)

// NoParent marks a step whose target is the push destination itself.
const NoParent = -1

// Step is one remote operation of a push. Parent is the index of the folder
// step that creates the containing folder, or NoParent.
type Step struct {
	Kind      StepKind
	LocalPath string
	Name      string
	Size      int64
	Parent    int
}

// Plan orders the tree depth-first so that every folder step comes before
// the steps of its contents.
func (t *Filetree) Plan() []Step {
	var steps []Step
	var visit func(n Node, parent int)
	visit = func(n Node, parent int) {
		switch v := n.(type) {
		case *Dir:
			steps = append(steps, Step{Kind: StepFolder, LocalPath: v.path, Name: v.name, Parent: parent})
			idx := len(steps) - 1
			for _, c := range v.children {
				visit(c, idx)
			}
		case *File:
			steps = append(steps, Step{Kind: StepFile, LocalPath: v.path, Name: v.name, Size: v.size, Parent: parent})
		}
	}
	for _, r := range t.Roots {
		visit(r, NoParent)
	}
	return steps
}
