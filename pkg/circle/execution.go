package circle

import (
	"time"
)

type ExecutionType string

const (
	TypeDeployment   ExecutionType = "DEPLOYMENT"
	TypeUndeployment ExecutionType = "UNDEPLOYMENT"
)

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusDeploying      Status = "DEPLOYING"
	StatusDeployed       Status = "DEPLOYED"
	StatusDeployFailed   Status = "DEPLOY_FAILED"
	StatusUndeploying    Status = "UNDEPLOYING"
	StatusUndeployed     Status = "UNDEPLOYED"
	StatusUndeployFailed Status = "UNDEPLOY_FAILED"
	StatusTimedOut       Status = "TIMED_OUT"
)

// transitions lists, for each target status, the statuses it may be
// reached from. TIMED_OUT is absent: only the sweep sets it.
var transitions = map[Status][]Status{
	StatusDeploying:      {StatusCreated},
	StatusDeployed:       {StatusDeploying},
	StatusDeployFailed:   {StatusCreated, StatusDeploying},
	StatusUndeploying:    {StatusCreated},
	StatusUndeployed:     {StatusUndeploying},
	StatusUndeployFailed: {StatusCreated, StatusUndeploying},
}

// From returns the statuses from which `to` may be entered, or nil
// if no ordinary transition leads there.
func From(to Status) []Status {
	return transitions[to]
}

// Terminal is true for statuses that end an execution.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeployed, StatusDeployFailed, StatusUndeployed, StatusUndeployFailed, StatusTimedOut:
		return true
	}
	return false
}

// Failed is true for terminal statuses that report a failure to the
// callback.
func (s Status) Failed() bool {
	switch s {
	case StatusDeployFailed, StatusUndeployFailed, StatusTimedOut:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationNotSent NotificationStatus = "NOT_SENT"
	// NotificationSending marks a callback claimed by one sender, so
	// no other sends it too.
	NotificationSending NotificationStatus = "SENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationError   NotificationStatus = "ERROR"
)

// NotificationFor maps the HTTP status of a callback response to the
// recorded notification status. A zero code means the request never
// got a response.
func NotificationFor(httpStatus int) NotificationStatus {
	if httpStatus >= 200 && httpStatus < 300 {
		return NotificationSent
	}
	return NotificationError
}

// Execution tracks one attempt at deploying or undeploying a
// deployment.
type Execution struct {
	ID                 ExecutionID        `json:"id"`
	DeploymentID       DeploymentID       `json:"deploymentId"`
	Type               ExecutionType      `json:"type"`
	IncomingCircleID   CircleID           `json:"incomingCircleId"`
	Status             Status             `json:"status"`
	NotificationStatus NotificationStatus `json:"notificationStatus"`
	Error              string             `json:"error,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	FinishedAt         *time.Time         `json:"finishedAt,omitempty"`

	// Populated by listings.
	Deployment *Deployment `json:"deployment,omitempty"`
}

// NewExecution returns an execution in CREATED for the deployment.
func NewExecution(d Deployment, typ ExecutionType, now time.Time) Execution {
	return Execution{
		ID:                 NewExecutionID(),
		DeploymentID:       d.ID,
		Type:               typ,
		IncomingCircleID:   d.CircleID,
		Status:             StatusCreated,
		NotificationStatus: NotificationNotSent,
		CreatedAt:          now,
	}
}
