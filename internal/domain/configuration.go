package domain

// Configuration holds the reference settings of a job. It is set once when
// the job is configured and treated as read-only during a resolution.
type Configuration struct {
	// ReferenceJob is the full name of a job to use as reference, bypassing
	// target branch inference. Empty means not configured.
	ReferenceJob string `json:"reference_job,omitempty" yaml:"reference_job,omitempty"`

	// TargetBranch overrides the inferred target branch. Empty means not configured.
	TargetBranch string `json:"target_branch,omitempty" yaml:"target_branch,omitempty"`

	// RequiredResult is the worst result a reference build may have.
	RequiredResult Result `json:"required_result" yaml:"required_result"`

	// ConsiderRunningBuild allows a still running build as the first candidate.
	ConsiderRunningBuild bool `json:"consider_running_build,omitempty" yaml:"consider_running_build,omitempty"`

	// LatestBuildIfNotFound falls back to the first candidate when the history
	// walk finds no matching build.
	LatestBuildIfNotFound bool `json:"latest_build_if_not_found,omitempty" yaml:"latest_build_if_not_found,omitempty"`
}

// NewConfiguration returns a Configuration with the default settings.
func NewConfiguration() Configuration {
	return Configuration{
		RequiredResult: ResultUnstable,
	}
}

// SetReferenceJob sets the explicit reference job.
func (c *Configuration) SetReferenceJob(name string) {
	c.ReferenceJob = name
}

// SetTargetBranch sets the explicit target branch.
func (c *Configuration) SetTargetBranch(branch string) {
	c.TargetBranch = branch
}

// SetRequiredResult sets the result threshold.
func (c *Configuration) SetRequiredResult(result Result) {
	c.RequiredResult = result
}

// SetConsiderRunningBuild enables or disables running builds as candidates.
func (c *Configuration) SetConsiderRunningBuild(consider bool) {
	c.ConsiderRunningBuild = consider
}

// SetLatestBuildIfNotFound enables or disables the latest build fallback.
func (c *Configuration) SetLatestBuildIfNotFound(latest bool) {
	c.LatestBuildIfNotFound = latest
}
