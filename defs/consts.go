package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelQueue = "queue"
	LabelSink  = "sink"
	LabelPool  = "pool"
	LabelPath  = "path"
)

// Metric prefix of all metrics created by the pipeline
const (
	MetricPrefix = "logpipe_"
)
