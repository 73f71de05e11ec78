// ABOUTME: Default go-kit/log backed ProgressListener, tagged with a run id for correlation
// ABOUTME: The graph core never imports go-kit/log directly; only this driver package does

package analyzer

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/prateek/heaplens/graph"
)

// LoggingProgressListener logs one line per Step transition at info level.
// Per-candidate-found lines are logged separately by FindPaths at debug
// level, tagged with the same run id.
type LoggingProgressListener struct {
	logger log.Logger
	runID  uuid.UUID
}

// NewLoggingProgressListener wraps logger with the run id so every line it
// emits for this findPaths call can be correlated across a busy server.
func NewLoggingProgressListener(logger log.Logger, runID uuid.UUID) *LoggingProgressListener {
	return &LoggingProgressListener{
		logger: log.With(logger, "run_id", runID.String(), "component", "analyzer"),
		runID:  runID,
	}
}

func (l *LoggingProgressListener) OnProgressUpdate(step graph.Step) {
	level.Info(l.logger).Log("msg", "progress", "step", step.String())
}

// LogCandidateFound implements CandidateLogger. FindPaths calls this for
// every leaking candidate it records, so a busy server's logs can be
// filtered down to just the candidates found for a given run id without
// the info-level step transitions drowning them out.
func (l *LoggingProgressListener) LogCandidateFound(id graph.ObjectId, className string, exclusionStatus *graph.ExclusionStatus) {
	status := "reachable"
	if exclusionStatus != nil {
		status = exclusionStatus.String()
	}
	level.Debug(l.logger).Log("msg", "candidate found", "object_id", id, "class_name", className, "exclusion_status", status)
}
