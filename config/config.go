// Package config loads clpipe settings from defaults, config files and CLPIPE_* environment variables.
package config

// Config is the full clpipe configuration.
type Config struct {
	Batch     BatchConfig     `mapstructure:"batch" toml:"batch" json:"batch" yaml:"batch"`
	FMRIPrep  FMRIPrepConfig  `mapstructure:"fmriprep" toml:"fmriprep" json:"fmriprep" yaml:"fmriprep"`
	Heudiconv HeudiconvConfig `mapstructure:"heudiconv" toml:"heudiconv" json:"heudiconv" yaml:"heudiconv"`
	RunLog    RunLogConfig    `mapstructure:"runlog" toml:"runlog" json:"runlog" yaml:"runlog"`

	// DateRan is stamped by Dump when a batch is submitted
	DateRan string `mapstructure:"date_ran" toml:"date_ran,omitempty" json:"date_ran,omitempty" yaml:"date_ran,omitempty"`
}

// BatchConfig configures the scheduler template and submission behavior
type BatchConfig struct {
	Scheduler      string `mapstructure:"scheduler" toml:"scheduler" json:"scheduler" yaml:"scheduler"`                         // slurm or pbs
	MemoryDefault  string `mapstructure:"memory_default" toml:"memory_default" json:"memory_default" yaml:"memory_default"`     // e.g. "5000", "16G"
	TimeDefault    string `mapstructure:"time_default" toml:"time_default" json:"time_default" yaml:"time_default"`             // e.g. "1:00:00", "2-00:00:00"
	ThreadsDefault int    `mapstructure:"threads_default" toml:"threads_default" json:"threads_default" yaml:"threads_default"` // cpus per task

	// Site overrides layered over the scheduler preset
	SubmitCommand string   `mapstructure:"submit_command" toml:"submit_command" json:"submit_command" yaml:"submit_command"` // e.g. "sbatch --export=NONE"
	Directives    []string `mapstructure:"directives" toml:"directives" json:"directives" yaml:"directives"`                 // extra directive lines, text/template
	JobIDPattern  string   `mapstructure:"job_id_pattern" toml:"job_id_pattern" json:"job_id_pattern" yaml:"job_id_pattern"` // needs one capture group

	EmailAddress         string   `mapstructure:"email_address" toml:"email_address" json:"email_address" yaml:"email_address"`
	SingularityBindPaths string   `mapstructure:"singularity_bind_paths" toml:"singularity_bind_paths" json:"singularity_bind_paths" yaml:"singularity_bind_paths"`
	Extras               []string `mapstructure:"extras" toml:"extras" json:"extras" yaml:"extras"` // "KEY=value"; viper lowercases map keys

	ScriptDir   string  `mapstructure:"script_dir" toml:"script_dir" json:"script_dir" yaml:"script_dir"`     // empty = <log dir>/scripts
	Concurrency int     `mapstructure:"concurrency" toml:"concurrency" json:"concurrency" yaml:"concurrency"` // parallel submit processes
	SubmitRate  float64 `mapstructure:"submit_rate" toml:"submit_rate" json:"submit_rate" yaml:"submit_rate"` // submissions per second, 0 = unlimited
}

// FMRIPrepConfig configures the fmriprep command
type FMRIPrepConfig struct {
	BIDSDirectory         string `mapstructure:"bids_directory" toml:"bids_directory" json:"bids_directory" yaml:"bids_directory"`
	WorkingDirectory      string `mapstructure:"working_directory" toml:"working_directory" json:"working_directory" yaml:"working_directory"`
	OutputDirectory       string `mapstructure:"output_directory" toml:"output_directory" json:"output_directory" yaml:"output_directory"`
	LogDirectory          string `mapstructure:"log_directory" toml:"log_directory" json:"log_directory" yaml:"log_directory"` // empty = <output>/batchOutput
	ImagePath             string `mapstructure:"image_path" toml:"image_path" json:"image_path" yaml:"image_path"`             // singularity image
	FreesurferLicensePath string `mapstructure:"freesurfer_license_path" toml:"freesurfer_license_path" json:"freesurfer_license_path" yaml:"freesurfer_license_path"`
	Memory                string `mapstructure:"memory" toml:"memory" json:"memory" yaml:"memory"`
	Time                  string `mapstructure:"time" toml:"time" json:"time" yaml:"time"`
	Threads               int    `mapstructure:"threads" toml:"threads" json:"threads" yaml:"threads"` // 0 = batch default
}

// HeudiconvConfig configures the bids-setup command
type HeudiconvConfig struct {
	HeuristicFile string `mapstructure:"heuristic_file" toml:"heuristic_file" json:"heuristic_file" yaml:"heuristic_file"`
	OutputFile    string `mapstructure:"output_file" toml:"output_file" json:"output_file" yaml:"output_file"`
	Module        string `mapstructure:"module" toml:"module" json:"module" yaml:"module"`                // environment module to load, empty = none
	ScratchDir    string `mapstructure:"scratch_dir" toml:"scratch_dir" json:"scratch_dir" yaml:"scratch_dir"` // heudiconv output, removed afterwards
	LogDirectory  string `mapstructure:"log_directory" toml:"log_directory" json:"log_directory" yaml:"log_directory"`
}

// RunLogConfig configures the submission history database
type RunLogConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // "~" expands to the home directory
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// ProjectConfigName is the file name searched for upward from the working directory.
const ProjectConfigName = "clpipe.toml"

// EnvPrefix prefixes every environment override (CLPIPE_BATCH_SCHEDULER, ...).
const EnvPrefix = "CLPIPE"
