package workflow

import (
	"context"
	"fmt"
	"strings"

	"lipidquant/internal/logging"
	"lipidquant/internal/queue"
	"lipidquant/internal/services"
)

// handleJobFailure marks the job failed and records the error. The batch
// continues with the next job.
func (c *Coordinator) handleJobFailure(ctx context.Context, a *activeJob, stageErr error) {
	message := classifyJobFailure(a.step, stageErr)
	a.job.SetFailed(message)

	attrs := []logging.Attr{
		logging.String(logging.FieldStage, a.step),
		logging.String("resolved_status", string(queue.StatusError)),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.String("error_message", message),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(stageErr)),
	}
	logging.ErrorWithContext(a.logger, "stage failed", "stage_failure", attrs...)

	c.persist(context.WithoutCancel(ctx), a.logger, a.job)
	c.setLastError(stageErr)
}

func classifyJobFailure(step string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", step)
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", step)
	}
	return message
}

func failureHint(err error) string {
	switch services.Kind(err) {
	case "configuration":
		return "install the tool or set its path in the [tools] config section"
	case "timeout":
		return "raise conversion.timeout_seconds or check the converter"
	case "scheduling":
		return "inspect analyzer stderr with logging.level = \"debug\""
	case "external_tool":
		return "rerun the tool by hand on this file to see its full output"
	default:
		return "check logs for details"
	}
}
