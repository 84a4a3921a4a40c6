package pipeline

import "time"

// Stage is one step of a pipeline run.
type Stage string

const (
	StageInit        Stage = "init"
	StageIngest      Stage = "ingest"
	StageBuildPrompt Stage = "build_prompt"
	StageComplete    Stage = "complete"
	StageExtract     Stage = "extract"
	StageFanout      Stage = "fanout"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Stages lists the run stages in execution order, excluding terminal states.
var Stages = []Stage{StageInit, StageIngest, StageBuildPrompt, StageComplete, StageExtract, StageFanout}

// Index returns the position of s in Stages, or -1 for terminal states.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// StageEvent reports a stage transition. Err is set only for StageFailed,
// in which case Failed names the stage that failed.
type StageEvent struct {
	SourceID string
	Stage    Stage
	Failed   Stage
	Err      error
	At       time.Time
}

// Observer receives stage events synchronously, in order.
type Observer func(StageEvent)
