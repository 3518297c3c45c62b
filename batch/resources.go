package batch

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/clpipe/errors"
)

// Memory is a memory request in megabytes, the unit every supported scheduler accepts.
type Memory int64

// Megabytes returns the request in MB.
func (m Memory) Megabytes() int64 {
	return int64(m)
}

// Gigabytes returns the request in whole GB, rounded up.
func (m Memory) Gigabytes() int64 {
	return (int64(m) + 1023) / 1024
}

// String renders the shortest exact form ("16G", "5000M").
func (m Memory) String() string {
	if m > 0 && m%1024 == 0 {
		return fmt.Sprintf("%dG", int64(m)/1024)
	}
	return fmt.Sprintf("%dM", int64(m))
}

// ParseMemory converts "16G", "16GB", "4000M", "512K", "1T" or a bare number (MB) to Memory.
func ParseMemory(s string) (Memory, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, errors.New("empty memory value")
	}

	split := len(raw)
	for i, r := range raw {
		if r < '0' || r > '9' {
			split = i
			break
		}
	}
	if split == 0 {
		return 0, errors.Newf("memory %q must start with a number", s)
	}

	value, err := strconv.ParseInt(raw[:split], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "memory %q", s)
	}

	var mb int64
	switch strings.TrimSpace(raw[split:]) {
	case "", "M", "MB":
		mb = value
	case "G", "GB":
		if value > math.MaxInt64/1024 {
			return 0, errors.Newf("memory %q is out of range", s)
		}
		mb = value * 1024
	case "T", "TB":
		if value > math.MaxInt64/(1<<20) {
			return 0, errors.Newf("memory %q is out of range", s)
		}
		mb = value * 1024 * 1024
	case "K", "KB":
		mb = value/1024 + min(value%1024, 1)
	default:
		return 0, errors.Newf("memory %q has unknown unit %q", s, raw[split:])
	}
	if mb <= 0 {
		return 0, errors.Newf("memory %q must be positive", s)
	}
	return Memory(mb), nil
}

// ParseWallTime accepts Slurm time specs ("MM", "HH:MM:SS", "D-HH:MM:SS", "D-HH", "D-HH:MM")
// and Go durations ("90m", "2h30m").
func ParseWallTime(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, errors.New("empty wall time")
	}

	if strings.ContainsAny(raw, "hms") {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, errors.Wrapf(err, "wall time %q", s)
		}
		if d <= 0 {
			return 0, errors.Newf("wall time %q must be positive", s)
		}
		return d, nil
	}

	var days int64
	hms := raw
	withDays := false
	if idx := strings.Index(raw, "-"); idx >= 0 {
		d, err := strconv.ParseInt(raw[:idx], 10, 64)
		if err != nil || d < 0 {
			return 0, errors.Newf("wall time %q has invalid day count", s)
		}
		days = d
		hms = raw[idx+1:]
		withDays = true
	}

	parts := strings.Split(hms, ":")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, errors.Newf("wall time %q is not a valid time spec", s)
		}
		nums[i] = n
	}

	var hours, minutes, seconds int64
	switch {
	case withDays && len(nums) == 1:
		hours = nums[0]
	case withDays && len(nums) == 2:
		hours, minutes = nums[0], nums[1]
	case len(nums) == 3:
		hours, minutes, seconds = nums[0], nums[1], nums[2]
	case !withDays && len(nums) == 2:
		// Slurm reads "MM:SS" here, not "HH:MM"
		minutes, seconds = nums[0], nums[1]
	case !withDays && len(nums) == 1:
		minutes = nums[0]
	default:
		return 0, errors.Newf("wall time %q is not a valid time spec", s)
	}

	secs, ok := sumSeconds(days, 24*3600, hours, 3600, minutes, 60, seconds, 1)
	if !ok {
		return 0, errors.Newf("wall time %q is out of range", s)
	}
	if secs <= 0 {
		return 0, errors.Newf("wall time %q must be positive", s)
	}
	return time.Duration(secs) * time.Second, nil
}

// maxWallSeconds is the longest wall time a time.Duration can hold, in whole seconds.
const maxWallSeconds = math.MaxInt64 / int64(time.Second)

// sumSeconds adds count*unit pairs, failing once the total passes maxWallSeconds.
func sumSeconds(pairs ...int64) (int64, bool) {
	var total int64
	for i := 0; i+1 < len(pairs); i += 2 {
		n, unit := pairs[i], pairs[i+1]
		if n > (maxWallSeconds-total)/unit {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}

// ResourceProfile is the resource request attached to a job.
// Nil fields are unset: Merge inherits them and compilation rejects them.
type ResourceProfile struct {
	Memory   *Memory
	WallTime *time.Duration
	Threads  *int
	// Extras holds scheduler-specific settings (mail_user, SINGULARITY_BINDPATH, ...).
	Extras map[string]string
}

// NewResourceProfile builds a fully specified profile from configuration strings.
func NewResourceProfile(memory, wallTime string, threads int) (ResourceProfile, error) {
	var problems []string

	mem, err := ParseMemory(memory)
	if err != nil {
		problems = append(problems, err.Error())
	}
	wt, err := ParseWallTime(wallTime)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if threads < 1 {
		problems = append(problems, fmt.Sprintf("threads must be >= 1, got %d", threads))
	}
	if len(problems) > 0 {
		return ResourceProfile{}, &InvalidResourceProfileError{Problems: problems}
	}

	return ResourceProfile{Memory: &mem, WallTime: &wt, Threads: &threads}, nil
}

// WithMemory returns a copy of p with memory set.
func (p ResourceProfile) WithMemory(m Memory) ResourceProfile {
	p.Memory = &m
	return p
}

// WithWallTime returns a copy of p with the wall time set.
func (p ResourceProfile) WithWallTime(d time.Duration) ResourceProfile {
	p.WallTime = &d
	return p
}

// WithThreads returns a copy of p with the thread count set.
func (p ResourceProfile) WithThreads(n int) ResourceProfile {
	p.Threads = &n
	return p
}

// WithExtra returns a copy of p with one extra set.
func (p ResourceProfile) WithExtra(key, value string) ResourceProfile {
	extras := make(map[string]string, len(p.Extras)+1)
	for k, v := range p.Extras {
		extras[k] = v
	}
	extras[key] = value
	p.Extras = extras
	return p
}

// Clone returns a deep copy so callers never share pointers with the manager.
func (p ResourceProfile) Clone() ResourceProfile {
	var out ResourceProfile
	if p.Memory != nil {
		m := *p.Memory
		out.Memory = &m
	}
	if p.WallTime != nil {
		d := *p.WallTime
		out.WallTime = &d
	}
	if p.Threads != nil {
		n := *p.Threads
		out.Threads = &n
	}
	if p.Extras != nil {
		out.Extras = make(map[string]string, len(p.Extras))
		for k, v := range p.Extras {
			out.Extras[k] = v
		}
	}
	return out
}

// IsEmpty reports whether no field is set.
func (p ResourceProfile) IsEmpty() bool {
	return p.Memory == nil && p.WallTime == nil && p.Threads == nil && len(p.Extras) == 0
}

// Merge returns base with every field set in override replacing base's value.
// Extras merge per key, override winning.
func Merge(base, override ResourceProfile) ResourceProfile {
	out := base.Clone()
	o := override.Clone()

	if o.Memory != nil {
		out.Memory = o.Memory
	}
	if o.WallTime != nil {
		out.WallTime = o.WallTime
	}
	if o.Threads != nil {
		out.Threads = o.Threads
	}
	if len(o.Extras) > 0 {
		if out.Extras == nil {
			out.Extras = make(map[string]string, len(o.Extras))
		}
		for k, v := range o.Extras {
			out.Extras[k] = v
		}
	}
	return out
}

// Validate checks the profile is complete enough to hand to a scheduler.
func (p ResourceProfile) Validate() error {
	var problems []string

	switch {
	case p.Memory == nil:
		problems = append(problems, "memory is not set")
	case *p.Memory <= 0:
		problems = append(problems, fmt.Sprintf("memory must be positive, got %dM", int64(*p.Memory)))
	}

	switch {
	case p.WallTime == nil:
		problems = append(problems, "wall time is not set")
	case *p.WallTime < time.Second:
		problems = append(problems, fmt.Sprintf("wall time must be at least 1s, got %s", *p.WallTime))
	}

	switch {
	case p.Threads == nil:
		problems = append(problems, "threads is not set")
	case *p.Threads < 1:
		problems = append(problems, fmt.Sprintf("threads must be >= 1, got %d", *p.Threads))
	}

	for _, key := range p.ExtraKeys() {
		if key == "" {
			problems = append(problems, "extras contain an empty key")
		}
	}

	if len(problems) > 0 {
		return &InvalidResourceProfileError{Problems: problems}
	}
	return nil
}

// ExtraKeys returns the extras keys in sorted order.
func (p ResourceProfile) ExtraKeys() []string {
	keys := make([]string, 0, len(p.Extras))
	for k := range p.Extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String is used in log lines and dry-run summaries.
func (p ResourceProfile) String() string {
	mem, wt, th := "unset", "unset", "unset"
	if p.Memory != nil {
		mem = p.Memory.String()
	}
	if p.WallTime != nil {
		wt = p.WallTime.String()
	}
	if p.Threads != nil {
		th = strconv.Itoa(*p.Threads)
	}
	return fmt.Sprintf("mem=%s time=%s threads=%s", mem, wt, th)
}
