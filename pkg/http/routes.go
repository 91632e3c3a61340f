package http

const (
	Ping    = "Ping"
	Version = "Version"

	CreateDeployment   = "CreateDeployment"
	GetDeployment      = "GetDeployment"
	UndeployDeployment = "UndeployDeployment"
	ListExecutions     = "ListExecutions"
	GetExecution       = "GetExecution"
	ListCircles        = "ListCircles"
	ReconcileGroup     = "ReconcileGroup"
	Sweep              = "Sweep"
)
