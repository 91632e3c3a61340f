package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

const executionColumns = `e.id, e.deployment_id, e.type, e.incoming_circle_id, e.status,
	e.notification_status, e.error, e.created_at, e.finished_at`

func scanExecution(row scanner) (circle.Execution, error) {
	var (
		e          circle.Execution
		createdAt  timestamp
		finishedAt nullTime
	)
	if err := row.Scan(&e.ID, &e.DeploymentID, &e.Type, &e.IncomingCircleID, &e.Status,
		&e.NotificationStatus, &e.Error, &createdAt, &finishedAt); err != nil {
		return circle.Execution{}, err
	}
	e.CreatedAt = createdAt.Time
	e.FinishedAt = finishedAt.Ptr()
	return e, nil
}

func (s *DatabaseStore) CreateExecution(ctx context.Context, e circle.Execution) (err error) {
	defer func(begin time.Time) { observe("CreateExecution", begin, err) }(time.Now())
	_, err = s.exec(ctx, `
		INSERT INTO executions (id, deployment_id, type, incoming_circle_id, status,
		                        notification_status, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.DeploymentID), string(e.Type), string(e.IncomingCircleID), string(e.Status),
		string(e.NotificationStatus), e.Error, dbTime(e.CreatedAt), dbNullTime(e.FinishedAt))
	if err != nil && isUniqueViolation(err) {
		return store.AlreadyExistsError("execution", string(e.ID))
	}
	return persistence(err, "inserting execution")
}

func (s *DatabaseStore) GetExecution(ctx context.Context, id circle.ExecutionID) (e circle.Execution, err error) {
	defer func(begin time.Time) { observe("GetExecution", begin, err) }(time.Now())
	e, err = scanExecution(s.queryRow(ctx, `SELECT `+executionColumns+` FROM executions e WHERE e.id = ?`, string(id)))
	if err == sql.ErrNoRows {
		return circle.Execution{}, store.NotFoundError("execution", string(id))
	} else if err != nil {
		return circle.Execution{}, persistence(err, "getting execution")
	}
	if err := s.attachDeployments(ctx, []*circle.Execution{&e}); err != nil {
		return circle.Execution{}, err
	}
	return e, nil
}

func (s *DatabaseStore) ListExecutions(ctx context.Context, q store.ExecutionQuery) (page circle.ExecutionPage, err error) {
	defer func(begin time.Time) { observe("ListExecutions", begin, err) }(time.Now())
	req := q.PageRequest.Normalize()

	var p predicate
	if q.Current != nil {
		p.and(`d.is_current = ?`, *q.Current)
	}
	from := ` FROM executions e JOIN deployments d ON d.id = e.deployment_id` + p.where()

	total, err := s.count(ctx, `SELECT COUNT(*)`+from, p.args...)
	if err != nil {
		return page, persistence(err, "counting executions")
	}
	executions, err := s.executions(ctx,
		`SELECT `+executionColumns+from+` ORDER BY e.created_at DESC, e.id DESC LIMIT ? OFFSET ?`,
		append(p.args, req.Size, req.Offset())...)
	if err != nil {
		return page, err
	}
	if executions == nil {
		executions = []circle.Execution{}
	}
	return circle.ExecutionPage{Page: circle.NewPage(req, total), Content: executions}, nil
}

func (s *DatabaseStore) TransitionExecution(ctx context.Context, id circle.ExecutionID, from []circle.Status, to circle.Status, detail string, at time.Time) (err error) {
	defer func(begin time.Time) { observe("TransitionExecution", begin, err) }(time.Now())
	if len(from) == 0 {
		return store.ErrStaleTransition
	}
	set, args := `status = ?, error = ?`, []interface{}{string(to), detail}
	if to.Terminal() {
		set, args = set+`, finished_at = ?`, append(args, dbTime(at))
	}
	res, err := s.execIn(ctx, `UPDATE executions SET `+set+` WHERE id = ? AND status IN (?)`,
		append(args, string(id), statusStrings(from))...)
	if err != nil {
		return persistence(err, "transitioning execution")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(err, "transitioning execution")
	}
	if n == 0 {
		if _, err := s.GetExecution(ctx, id); err != nil {
			return err
		}
		return store.ErrStaleTransition
	}
	return nil
}

func (s *DatabaseStore) SetNotificationStatus(ctx context.Context, id circle.ExecutionID, status circle.NotificationStatus) (err error) {
	defer func(begin time.Time) { observe("SetNotificationStatus", begin, err) }(time.Now())
	res, err := s.exec(ctx, `UPDATE executions SET notification_status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return persistence(err, "updating notification status")
	}
	if n, err := res.RowsAffected(); err != nil {
		return persistence(err, "updating notification status")
	} else if n == 0 {
		return store.NotFoundError("execution", string(id))
	}
	return nil
}

func (s *DatabaseStore) ClaimNotification(ctx context.Context, id circle.ExecutionID) (claimed bool, err error) {
	defer func(begin time.Time) { observe("ClaimNotification", begin, err) }(time.Now())
	res, err := s.exec(ctx, `UPDATE executions SET notification_status = ? WHERE id = ? AND notification_status = ?`,
		string(circle.NotificationSending), string(id), string(circle.NotificationNotSent))
	if err != nil {
		return false, persistence(err, "claiming notification")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistence(err, "claiming notification")
	}
	if n == 0 {
		if _, err := s.GetExecution(ctx, id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

// stalled matches deployments that are current, or still waiting to
// be, but have not become both healthy and routed.
const stalled = `d.superseded = ? AND NOT (d.healthy = ? AND d.routed = ?)`

func (s *DatabaseStore) TimeoutCandidates(ctx context.Context) (es []circle.Execution, err error) {
	defer func(begin time.Time) { observe("TimeoutCandidates", begin, err) }(time.Now())
	return s.executions(ctx, `
		SELECT `+executionColumns+`
		  FROM executions e JOIN deployments d ON d.id = e.deployment_id
		 WHERE e.notification_status = ? AND e.status <> ? AND `+stalled+`
		 ORDER BY e.created_at, e.id`,
		string(circle.NotificationNotSent), string(circle.StatusTimedOut), false, true, true)
}

func (s *DatabaseStore) TimeOutExecution(ctx context.Context, id circle.ExecutionID, detail string, at time.Time) (err error) {
	defer func(begin time.Time) { observe("TimeOutExecution", begin, err) }(time.Now())
	res, err := s.exec(ctx, `
		UPDATE executions SET status = ?, error = ?, finished_at = ?
		 WHERE id = ? AND notification_status = ? AND status <> ?
		   AND EXISTS (SELECT 1 FROM deployments d
		                WHERE d.id = executions.deployment_id AND `+stalled+`)`,
		string(circle.StatusTimedOut), detail, dbTime(at),
		string(id), string(circle.NotificationNotSent), string(circle.StatusTimedOut), false, true, true)
	if err != nil {
		return persistence(err, "timing out execution")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(err, "timing out execution")
	}
	if n == 0 {
		return store.ErrStaleTransition
	}
	return nil
}

func (s *DatabaseStore) PendingNotifications(ctx context.Context, ids []circle.DeploymentID) (es []circle.Execution, err error) {
	defer func(begin time.Time) { observe("PendingNotifications", begin, err) }(time.Now())
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.queryIn(ctx, `
		SELECT `+executionColumns+` FROM executions e
		 WHERE e.deployment_id IN (?) AND e.type = ? AND e.status = ? AND e.notification_status = ?
		 ORDER BY e.created_at, e.id`,
		idStrings(ids), string(circle.TypeDeployment), string(circle.StatusDeployed), string(circle.NotificationNotSent))
	if err != nil {
		return nil, persistence(err, "listing pending notifications")
	}
	return s.scanExecutions(ctx, rows)
}

func (s *DatabaseStore) executions(ctx context.Context, query string, args ...interface{}) ([]circle.Execution, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, persistence(err, "listing executions")
	}
	return s.scanExecutions(ctx, rows)
}

func (s *DatabaseStore) scanExecutions(ctx context.Context, rows rowsScanner) ([]circle.Execution, error) {
	var es []circle.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			rows.Close()
			return nil, persistence(err, "scanning execution")
		}
		es = append(es, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, persistence(err, "listing executions")
	}
	rows.Close()

	ptrs := make([]*circle.Execution, len(es))
	for i := range es {
		ptrs[i] = &es[i]
	}
	if err := s.attachDeployments(ctx, ptrs); err != nil {
		return nil, err
	}
	return es, nil
}

func (s *DatabaseStore) attachDeployments(ctx context.Context, es []*circle.Execution) error {
	seen := map[circle.DeploymentID]bool{}
	var ids []circle.DeploymentID
	for _, e := range es {
		if !seen[e.DeploymentID] {
			seen[e.DeploymentID] = true
			ids = append(ids, e.DeploymentID)
		}
	}
	deployments, err := s.deploymentsByID(ctx, ids)
	if err != nil {
		return err
	}
	for _, e := range es {
		if d, ok := deployments[e.DeploymentID]; ok {
			d := d
			e.Deployment = &d
		}
	}
	return nil
}

func statusStrings(statuses []circle.Status) []string {
	out := make([]string, len(statuses))
	for i := range statuses {
		out[i] = string(statuses[i])
	}
	return out
}
