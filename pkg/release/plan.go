package release

// Status is one step's lifecycle state.
type Status string

// Step statuses. A step with irreversible real-world effect never returns to
// pending once done; only forward remediation is possible.
const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Pipeline step names, in execution order.
const (
	StepVerifyClean    = "verify-clean"
	StepComputeVersion = "compute-version"
	StepRunTests       = "run-tests"
	StepCoverage       = "coverage"
	StepChangelog      = "changelog"
	StepTag            = "tag"
	StepPush           = "push"
	StepPublish        = "publish"
)

// stepOrder is the fixed pipeline. Steps from StepTag onward are
// irreversible: a failure there is never rolled back, only reported.
var stepOrder = []string{
	StepVerifyClean,
	StepComputeVersion,
	StepRunTests,
	StepCoverage,
	StepChangelog,
	StepTag,
	StepPush,
	StepPublish,
}

// Step is one entry of the release plan.
type Step struct {
	Name   string
	Status Status
	Detail string
}

// Plan is the ordered audit record of one release attempt.
type Plan struct {
	Steps []Step
}

// NewPlan returns a fresh plan with every step pending.
func NewPlan() *Plan {
	steps := make([]Step, len(stepOrder))
	for i, name := range stepOrder {
		steps[i] = Step{Name: name, Status: StatusPending}
	}
	return &Plan{Steps: steps}
}

func (p *Plan) index(name string) int {
	for i, s := range p.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Mark sets a step's terminal status and detail.
func (p *Plan) Mark(name string, status Status, detail string) {
	if i := p.index(name); i >= 0 {
		p.Steps[i].Status = status
		p.Steps[i].Detail = detail
	}
}

// SkipFrom marks the named step and everything after it as skipped, leaving
// already-terminal steps untouched.
func (p *Plan) SkipFrom(name string) {
	start := p.index(name)
	if start < 0 {
		return
	}
	for i := start; i < len(p.Steps); i++ {
		if p.Steps[i].Status == StatusPending {
			p.Steps[i].Status = StatusSkipped
		}
	}
}

// Get returns the named step.
func (p *Plan) Get(name string) (Step, bool) {
	if i := p.index(name); i >= 0 {
		return p.Steps[i], true
	}
	return Step{}, false
}

// FirstFailed returns the first failed step, if any.
func (p *Plan) FirstFailed() (Step, bool) {
	for _, s := range p.Steps {
		if s.Status == StatusFailed {
			return s, true
		}
	}
	return Step{}, false
}

// irreversibleFrom is the first step whose effects cannot be undone.
const irreversibleFrom = StepTag

// PassedPointOfNoReturn reports whether any irreversible step already
// completed, which rules out a clean abort.
func (p *Plan) PassedPointOfNoReturn() bool {
	start := p.index(irreversibleFrom)
	for i := start; i < len(p.Steps); i++ {
		if p.Steps[i].Status == StatusDone {
			return true
		}
	}
	return false
}
