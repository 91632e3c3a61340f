package metrics

/*
Labels and so on for metrics used by the circles daemon.
*/

const (
	LabelMethod    = "method"
	LabelNamespace = "namespace"
	LabelSuccess   = "success"
	LabelKind      = "kind"
	LabelAction    = "action"
	LabelRoute     = "route"

	// Labels for pipeline metrics
	LabelType   = "type"
	LabelStatus = "status"
	LabelStage  = "stage"
)
