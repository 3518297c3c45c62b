package batch

// Job is one named unit of work: a shell fragment plus optional resource needs.
type Job struct {
	name      string
	body      string
	resources *ResourceProfile
}

// JobOption customizes a Job at construction.
type JobOption func(*Job)

// WithResources attaches a per-job override merged over the manager default at compile time.
func WithResources(p ResourceProfile) JobOption {
	return func(j *Job) {
		clone := p.Clone()
		j.resources = &clone
	}
}

// NewJob creates a job. Name syntax is checked at compile time because legality
// depends on the scheduler.
func NewJob(name, body string, opts ...JobOption) Job {
	j := Job{name: name, body: body}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

// Name returns the job identifier.
func (j Job) Name() string { return j.name }

// Body returns the opaque command body.
func (j Job) Body() string { return j.body }

// Resources returns the per-job override, if any.
func (j Job) Resources() (ResourceProfile, bool) {
	if j.resources == nil {
		return ResourceProfile{}, false
	}
	return j.resources.Clone(), true
}

func (j Job) clone() Job {
	out := Job{name: j.name, body: j.body}
	if j.resources != nil {
		r := j.resources.Clone()
		out.resources = &r
	}
	return out
}

// CompiledScript is the submittable text for one job.
type CompiledScript struct {
	JobName string
	Profile ResourceProfile
	Header  string
	Text    string
}
