package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a conversion job.
type Status string

const (
	StatusNeedsVendorConversion Status = "needs_vendor_conversion"
	StatusNeedsChromConversion  Status = "needs_chrom_conversion"
	StatusNeedsQuantification   Status = "needs_quantification"
	StatusDone                  Status = "done"
	StatusError                 Status = "error"
)

var allStatuses = []Status{
	StatusNeedsVendorConversion,
	StatusNeedsChromConversion,
	StatusNeedsQuantification,
	StatusDone,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every job status in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Job is one row of the batch table: a source file, the analyte definition it
// is quantified against, and the artifacts produced so far.
type Job struct {
	ID               int64
	Pass             int
	Position         int
	SourcePath       string
	DefinitionPath   string
	Derived          bool
	Status           Status
	IntermediatePath string
	ChromPath        string
	ResultPath       string
	ErrorMessage     string
	ProgressStage    string
	ProgressPercent  float64
	ProgressMessage  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether the job has finished, successfully or not.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// SetFailed marks the job as failed with the supplied message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusError
	j.ErrorMessage = strings.TrimSpace(message)
	j.ProgressStage = "Failed"
	j.ProgressMessage = j.ErrorMessage
}

// SetDone marks the job complete.
func (j *Job) SetDone(message string) {
	j.Status = StatusDone
	j.ErrorMessage = ""
	j.ProgressStage = "Done"
	j.ProgressPercent = 100
	j.ProgressMessage = strings.TrimSpace(message)
}

// Clone returns a copy safe to hand to readers outside the coordinator.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	copy := *j
	return &copy
}
