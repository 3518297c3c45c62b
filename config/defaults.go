package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Batch defaults
	v.SetDefault("batch.scheduler", "slurm")
	v.SetDefault("batch.memory_default", "5000M")
	v.SetDefault("batch.time_default", "1:00:00")
	v.SetDefault("batch.threads_default", 1)
	v.SetDefault("batch.submit_command", "")
	v.SetDefault("batch.directives", []string{})
	v.SetDefault("batch.job_id_pattern", "")
	v.SetDefault("batch.email_address", "")
	v.SetDefault("batch.singularity_bind_paths", "")
	v.SetDefault("batch.extras", []string{})
	v.SetDefault("batch.script_dir", "")
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.submit_rate", 0.0)

	// fmriprep defaults
	v.SetDefault("fmriprep.bids_directory", "")
	v.SetDefault("fmriprep.working_directory", "")
	v.SetDefault("fmriprep.output_directory", "")
	v.SetDefault("fmriprep.log_directory", "")
	v.SetDefault("fmriprep.image_path", "")
	v.SetDefault("fmriprep.freesurfer_license_path", "")
	v.SetDefault("fmriprep.memory", "20000M")
	v.SetDefault("fmriprep.time", "10:00:00")
	v.SetDefault("fmriprep.threads", 12)

	// heudiconv defaults
	v.SetDefault("heudiconv.heuristic_file", "")
	v.SetDefault("heudiconv.output_file", "dicom_info.tsv")
	v.SetDefault("heudiconv.module", "heudiconv")
	v.SetDefault("heudiconv.scratch_dir", "./heudiconv_setup/")
	v.SetDefault("heudiconv.log_directory", "")

	// Run log defaults
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.path", "~/.clpipe/runlog.db")

	v.SetDefault("date_ran", "")
}

// BindEnvVars wires CLPIPE_* overrides. Every key with a default is reachable
// through AutomaticEnv; the explicit binds cover the common short forms.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("batch.scheduler", "CLPIPE_SCHEDULER")
	v.BindEnv("batch.email_address", "CLPIPE_EMAIL")
	v.BindEnv("runlog.path", "CLPIPE_RUNLOG")
}
