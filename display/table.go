package display

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/errors"
	"github.com/teranos/clpipe/internal/util"
	"github.com/teranos/clpipe/runlog"
)

// TimeLayout formats run timestamps in tables.
const TimeLayout = "2006-01-02 15:04"

// SubmissionRow is the JSON form of one submission result.
type SubmissionRow struct {
	JobName    string `json:"job_name"`
	JobID      string `json:"job_id,omitempty"`
	ScriptPath string `json:"script_path,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SubmissionRows converts results for JSON output, in job order.
func SubmissionRows(results []batch.SubmissionResult) []SubmissionRow {
	rows := make([]SubmissionRow, len(results))
	for i, r := range results {
		rows[i] = SubmissionRow{
			JobName:    r.JobName,
			JobID:      r.JobID,
			ScriptPath: r.ScriptPath,
			ExitCode:   r.ExitCode,
		}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
	}
	return rows
}

// SubmissionSummary writes one table row per job followed by a totals line.
func SubmissionSummary(w io.Writer, results []batch.SubmissionResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No jobs submitted")
		return err
	}

	data := pterm.TableData{{"JOB", "STATUS", "JOB ID", "DETAIL"}}
	for _, r := range results {
		if r.Succeeded() {
			data = append(data, []string{r.JobName, pterm.Green("submitted"), r.JobID, ""})
			continue
		}
		status := pterm.Red("failed")
		if isSkipped(r.Err) {
			status = pterm.Yellow("skipped")
		}
		data = append(data, []string{r.JobName, status, "", firstLine(errString(r.Err))})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	ok, failed := batch.Summarize(results)
	totals := fmt.Sprintf("%s submitted, %s failed", pterm.Green(strconv.Itoa(ok)), pterm.Red(strconv.Itoa(failed)))
	_, err = fmt.Fprintf(w, "%s\n\n%s\n", table, totals)
	return err
}

// RunsTable lists recorded runs, newest first.
func RunsTable(w io.Writer, runs []runlog.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}

	data := pterm.TableData{{"ID", "STEP", "SCHEDULER", "SUBMITTED", "JOBS", "OK", "FAILED", "SUBJECTS"}}
	for _, r := range runs {
		data = append(data, []string{
			util.ShortID(r.ID, 8),
			r.Step,
			r.Scheduler,
			r.SubmittedAt.Local().Format(TimeLayout),
			strconv.Itoa(r.JobCount),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			util.Truncate(strings.Join(r.Subjects, ","), 30),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// JobsTable lists the jobs of one run in submission order.
func JobsTable(w io.Writer, jobs []runlog.JobRecord) error {
	data := pterm.TableData{{"#", "JOB", "JOB ID", "EXIT", "ERROR"}}
	for _, j := range jobs {
		data = append(data, []string{
			strconv.Itoa(j.Position),
			j.JobName,
			j.JobID,
			strconv.Itoa(j.ExitCode),
			firstLine(j.Error),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// isSkipped matches jobs never handed to the scheduler because the batch was cancelled.
func isSkipped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstLine(s string) string {
	return util.Truncate(util.FirstLine(s), 60)
}
