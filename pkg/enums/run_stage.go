package enums

// RunStage names one step of the pipeline; reports and metrics key off it.
type RunStage string

const (
	RunStageIngest      RunStage = "ingest"
	RunStageNormalize   RunStage = "normalize"
	RunStageClassify    RunStage = "classify"
	RunStageSubstitute  RunStage = "substitute"
	RunStageOverflow    RunStage = "overflow"
	RunStageConsolidate RunStage = "consolidate"
	RunStageAggregate   RunStage = "aggregate"
)

var pipelineStageOrder = []RunStage{
	RunStageIngest,
	RunStageNormalize,
	RunStageClassify,
	RunStageSubstitute,
	RunStageOverflow,
	RunStageConsolidate,
	RunStageAggregate,
}

// PipelineStages returns the stages in execution order.
func PipelineStages() []RunStage {
	out := make([]RunStage, len(pipelineStageOrder))
	copy(out, pipelineStageOrder)
	return out
}

// String implements fmt.Stringer.
func (s RunStage) String() string {
	return string(s)
}
