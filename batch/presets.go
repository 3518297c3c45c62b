package batch

import "strings"

// SlurmSpec is the DirectiveSpec behind Slurm(). Callers copy and adjust it for site overrides.
func SlurmSpec() DirectiveSpec {
	return DirectiveSpec{
		Scheduler: "slurm",
		Shell:     "#!/bin/bash",
		Prefix:    "#SBATCH",
		Directives: []string{
			"--job-name={{.JobName}}",
			"--output={{.Stdout}}",
			"--error={{.Stderr}}",
			"--mem={{.Memory.Megabytes}}M",
			"--time={{slurmTime .WallTime}}",
			"--cpus-per-task={{.Threads}}",
			"--no-requeue",
		},
		ExtraDirectives: map[string]string{
			"mail_user": "--mail-user={{.Value}}",
			"mail_type": "--mail-type={{.Value}}",
			"partition": "--partition={{.Value}}",
			"account":   "--account={{.Value}}",
			"qos":       "--qos={{.Value}}",
		},
		JobNamePattern:   `^[A-Za-z0-9_][A-Za-z0-9_.+\-]*$`,
		MaxJobNameLength: 200,
		SubmitExecutable: "sbatch",
		JobIDPattern:     `Submitted batch job (\d+)`,
	}
}

// PBSSpec is the DirectiveSpec behind PBS().
func PBSSpec() DirectiveSpec {
	return DirectiveSpec{
		Scheduler: "pbs",
		Shell:     "#!/bin/bash",
		Prefix:    "#PBS",
		Directives: []string{
			"-N {{.JobName}}",
			"-o {{.Stdout}}",
			"-e {{.Stderr}}",
			"-l mem={{.Memory.Megabytes}}mb",
			"-l walltime={{hms .WallTime}}",
			"-l nodes=1:ppn={{.Threads}}",
		},
		ExtraDirectives: map[string]string{
			"mail_user": "-M {{.Value}}",
			"mail_type": "-m {{.Value}}",
			"queue":     "-q {{.Value}}",
			"account":   "-A {{.Value}}",
		},
		JobNamePattern:   `^[A-Za-z][A-Za-z0-9_.+\-]*$`,
		MaxJobNameLength: 236,
		SubmitExecutable: "qsub",
		JobIDPattern:     `(?m)^\s*(\d+[\w.\-]*)\s*$`,
	}
}

// Slurm returns the stock Slurm template.
func Slurm() *DirectiveTemplate {
	return mustTemplate(SlurmSpec())
}

// PBS returns the stock PBS/Torque template.
func PBS() *DirectiveTemplate {
	return mustTemplate(PBSSpec())
}

// PresetSpec looks up a preset by scheduler name, case-insensitively.
func PresetSpec(name string) (DirectiveSpec, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "slurm":
		return SlurmSpec(), true
	case "pbs", "torque":
		return PBSSpec(), true
	}
	return DirectiveSpec{}, false
}

// Presets lists the scheduler names PresetSpec knows.
func Presets() []string {
	return []string{"slurm", "pbs"}
}

func mustTemplate(spec DirectiveSpec) *DirectiveTemplate {
	t, err := NewDirectiveTemplate(spec)
	if err != nil {
		panic(err)
	}
	return t
}
