package param

// ConstOpCode identifies a constant-term optimization pass broadcast through
// an evaluator tree.
type ConstOpCode int

const (
	// Activate asks evaluators to detect constant sub-expressions and begin
	// caching them.
	Activate ConstOpCode = iota
	// DeActivate disables constant-term caching and drops existing caches.
	DeActivate
	// ConfigChange signals that the optimization configuration changed and
	// caches must be rebuilt from scratch.
	ConfigChange
	// ValueChange signals that a parameter previously treated as constant
	// changed value, invalidating caches derived from it.
	ValueChange
)

func (op ConstOpCode) String() string {
	switch op {
	case Activate:
		return "Activate"
	case DeActivate:
		return "DeActivate"
	case ConfigChange:
		return "ConfigChange"
	case ValueChange:
		return "ValueChange"
	default:
		return "Unknown"
	}
}

// StructuralChange is a notification that the model's parameter identities or
// optimization state changed. It is fanned out through an engine tree before
// the next evaluation so no child or worker computes against stale state.
type StructuralChange interface {
	structuralChange()
}

// Redirect replaces parameter identities: every parameter whose name appears
// in Replacements is swapped for the replacement instance.
type Redirect struct {
	Replacements   *Set
	MustReplaceAll bool
	NameChange     bool
	Recursive      bool
}

func (Redirect) structuralChange() {}

// ConstOptimize carries a constant-term optimization opcode.
type ConstOptimize struct {
	Op ConstOpCode
}

func (ConstOptimize) structuralChange() {}
