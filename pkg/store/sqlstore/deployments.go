package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

const deploymentColumns = `d.id, d.author_id, d.circle_id, d.namespace, d.callback_url,
	d.cd_configuration_id, d.default_circle, d.timeout_seconds, d.metadata,
	d.is_current, d.superseded, d.healthy, d.routable, d.routed, d.created_at`

func scanDeployment(row scanner) (circle.Deployment, error) {
	var (
		d         circle.Deployment
		metadata  sql.NullString
		createdAt timestamp
	)
	if err := row.Scan(
		&d.ID, &d.AuthorID, &d.CircleID, &d.Namespace, &d.CallbackURL,
		&d.CdConfigurationID, &d.DefaultCircle, &d.TimeoutInSeconds, &metadata,
		&d.Current, &d.Superseded, &d.Healthy, &d.Routable, &d.Routed, &createdAt,
	); err != nil {
		return circle.Deployment{}, err
	}
	d.CreatedAt = createdAt.Time
	if metadata.Valid && metadata.String != "" {
		d.Metadata = &circle.Metadata{}
		if err := json.Unmarshal([]byte(metadata.String), d.Metadata); err != nil {
			return circle.Deployment{}, errors.Wrap(err, "decoding deployment metadata")
		}
	}
	return d, nil
}

func (s *DatabaseStore) CreateDeployment(ctx context.Context, d circle.Deployment) (err error) {
	defer func(begin time.Time) { observe("CreateDeployment", begin, err) }(time.Now())

	var metadata interface{}
	if d.Metadata != nil {
		b, err := json.Marshal(d.Metadata)
		if err != nil {
			return errors.Wrap(err, "encoding deployment metadata")
		}
		metadata = string(b)
	}

	return s.tx(ctx, func(s *DatabaseStore) error {
		if _, err := s.exec(ctx, `
			INSERT INTO deployments (id, author_id, circle_id, namespace, callback_url,
			                         cd_configuration_id, default_circle, timeout_seconds, metadata,
			                         is_current, superseded, healthy, routable, routed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(d.ID), d.AuthorID, string(d.CircleID), d.Namespace, d.CallbackURL,
			d.CdConfigurationID, d.DefaultCircle, d.TimeoutInSeconds, metadata,
			false, false, false, false, false, dbTime(d.CreatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return store.AlreadyExistsError("deployment", string(d.ID))
			}
			return persistence(err, "inserting deployment")
		}
		for i, c := range d.Components {
			if _, err := s.exec(ctx, `
				INSERT INTO components (deployment_id, position, component_id, module_id, name,
				                        image_url, image_tag, running, host_value, gateway_name,
				                        merged, latency_threshold, error_threshold)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(d.ID), i, string(c.ID), string(c.ModuleID), c.Name,
				c.ImageURL, c.ImageTag, c.Running, c.HostValue, c.GatewayName,
				c.Merged, c.LatencyThreshold, c.ErrorThreshold,
			); err != nil {
				return persistence(err, "inserting component")
			}
		}
		return nil
	})
}

func (s *DatabaseStore) GetDeployment(ctx context.Context, id circle.DeploymentID) (d circle.Deployment, err error) {
	defer func(begin time.Time) { observe("GetDeployment", begin, err) }(time.Now())
	return s.oneDeployment(ctx, "deployment", string(id), `d.id = ?`, string(id))
}

func (s *DatabaseStore) CurrentDeployment(ctx context.Context, id circle.CircleID) (d circle.Deployment, err error) {
	defer func(begin time.Time) { observe("CurrentDeployment", begin, err) }(time.Now())
	return s.oneDeployment(ctx, "current deployment for circle", string(id),
		`d.circle_id = ? AND d.is_current = ?`, string(id), true)
}

func (s *DatabaseStore) LiveDefaultDeployments(ctx context.Context, id circle.CircleID) (ds []circle.Deployment, err error) {
	defer func(begin time.Time) { observe("LiveDefaultDeployments", begin, err) }(time.Now())
	rows, err := s.queryIn(ctx, `
		SELECT `+deploymentColumns+` FROM deployments d
		 WHERE d.circle_id = ? AND d.default_circle = ? AND d.superseded = ?
		   AND (d.is_current = ? OR EXISTS (
		        SELECT 1 FROM executions e
		         WHERE e.deployment_id = d.id AND e.type = ? AND e.status IN (?)))
		 ORDER BY d.created_at DESC, d.id DESC`,
		string(id), true, false, true,
		string(circle.TypeDeployment), statusStrings([]circle.Status{circle.StatusCreated, circle.StatusDeploying}))
	if err != nil {
		return nil, persistence(err, "listing default deployments")
	}
	return s.scanDeployments(ctx, rows)
}

func (s *DatabaseStore) MakeCurrent(ctx context.Context, id circle.DeploymentID) (current bool, err error) {
	defer func(begin time.Time) { observe("MakeCurrent", begin, err) }(time.Now())
	err = s.tx(ctx, func(s *DatabaseStore) error {
		d, err := s.oneDeployment(ctx, "deployment", string(id), `d.id = ?`, string(id))
		if err != nil {
			return err
		}
		if d.Superseded {
			return nil
		}
		siblings, err := s.deployments(ctx, `
			SELECT `+deploymentColumns+` FROM deployments d
			 WHERE d.circle_id = ? AND d.superseded = ?
			 ORDER BY d.created_at, d.id`,
			string(d.CircleID), false)
		if err != nil {
			return err
		}
		// Everything before d in creation order is superseded by it,
		// along with whichever deployment was current.
		ids := []string{string(id)}
		older := true
		for _, o := range siblings {
			if o.ID == id {
				older = false
				continue
			}
			if older || o.Current {
				ids = append(ids, string(o.ID))
			}
		}
		if _, err := s.execIn(ctx, `
			UPDATE deployments SET is_current = (id = ?), superseded = (id <> ?)
			 WHERE id IN (?)`,
			string(id), string(id), ids); err != nil {
			return persistence(err, "making deployment current")
		}
		current = true
		return nil
	})
	return current && err == nil, err
}

func (s *DatabaseStore) oneDeployment(ctx context.Context, kind, id, cond string, args ...interface{}) (circle.Deployment, error) {
	d, err := scanDeployment(s.queryRow(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE `+cond, args...))
	if err == sql.ErrNoRows {
		return circle.Deployment{}, store.NotFoundError(kind, id)
	} else if err != nil {
		return circle.Deployment{}, persistence(err, "getting deployment")
	}
	components, err := s.components(ctx, []circle.DeploymentID{d.ID})
	if err != nil {
		return circle.Deployment{}, err
	}
	d.Components = components[d.ID]
	return d, nil
}

func (s *DatabaseStore) ActiveDeployments(ctx context.Context, namespace string) (ds []circle.Deployment, err error) {
	defer func(begin time.Time) { observe("ActiveDeployments", begin, err) }(time.Now())
	return s.deployments(ctx, `
		SELECT `+deploymentColumns+` FROM deployments d
		 WHERE d.namespace = ? AND d.is_current = ? AND d.healthy = ? AND d.routable = ?
		 ORDER BY d.created_at, d.id`,
		namespace, true, true, true)
}

// deploymentsByID loads the deployments named, with components.
func (s *DatabaseStore) deploymentsByID(ctx context.Context, ids []circle.DeploymentID) (map[circle.DeploymentID]circle.Deployment, error) {
	out := map[circle.DeploymentID]circle.Deployment{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.queryIn(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE d.id IN (?)`, idStrings(ids))
	if err != nil {
		return nil, persistence(err, "getting deployments")
	}
	ds, err := s.scanDeployments(ctx, rows)
	if err != nil {
		return nil, err
	}
	for _, d := range ds {
		out[d.ID] = d
	}
	return out, nil
}

func (s *DatabaseStore) deployments(ctx context.Context, query string, args ...interface{}) ([]circle.Deployment, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, persistence(err, "listing deployments")
	}
	return s.scanDeployments(ctx, rows)
}

// scanDeployments reads and closes the rows, then fills in the
// components of each deployment.
func (s *DatabaseStore) scanDeployments(ctx context.Context, rows rowsScanner) ([]circle.Deployment, error) {
	var ds []circle.Deployment
	var ids []circle.DeploymentID
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			rows.Close()
			return nil, persistence(err, "scanning deployment")
		}
		ds = append(ds, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, persistence(err, "listing deployments")
	}
	rows.Close()

	components, err := s.components(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range ds {
		ds[i].Components = components[ds[i].ID]
	}
	return ds, nil
}

type rowsScanner interface {
	scanner
	Next() bool
	Err() error
	Close() error
}

func (s *DatabaseStore) components(ctx context.Context, ids []circle.DeploymentID) (map[circle.DeploymentID][]circle.Component, error) {
	out := map[circle.DeploymentID][]circle.Component{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.queryIn(ctx, `
		SELECT deployment_id, component_id, module_id, name, image_url, image_tag, running,
		       host_value, gateway_name, merged, latency_threshold, error_threshold
		  FROM components
		 WHERE deployment_id IN (?)
		 ORDER BY deployment_id, position`, idStrings(ids))
	if err != nil {
		return nil, persistence(err, "listing components")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			deploymentID circle.DeploymentID
			c            circle.Component
		)
		if err := rows.Scan(&deploymentID, &c.ID, &c.ModuleID, &c.Name, &c.ImageURL, &c.ImageTag, &c.Running,
			&c.HostValue, &c.GatewayName, &c.Merged, &c.LatencyThreshold, &c.ErrorThreshold); err != nil {
			return nil, persistence(err, "scanning component")
		}
		out[deploymentID] = append(out[deploymentID], c)
	}
	return out, persistence(rows.Err(), "listing components")
}

func (s *DatabaseStore) MarkHealthy(ctx context.Context, id circle.DeploymentID) (err error) {
	defer func(begin time.Time) { observe("MarkHealthy", begin, err) }(time.Now())
	return s.updateDeployment(ctx, id, `healthy = ?, routable = ?`, true, true)
}

func (s *DatabaseStore) SetRoutable(ctx context.Context, id circle.DeploymentID, routable bool) (err error) {
	defer func(begin time.Time) { observe("SetRoutable", begin, err) }(time.Now())
	return s.updateDeployment(ctx, id, `routable = ?`, routable)
}

func (s *DatabaseStore) Retire(ctx context.Context, id circle.DeploymentID) (err error) {
	defer func(begin time.Time) { observe("Retire", begin, err) }(time.Now())
	return s.updateDeployment(ctx, id, `is_current = ?, superseded = ?, healthy = ?, routable = ?`, false, true, false, false)
}

func (s *DatabaseStore) updateDeployment(ctx context.Context, id circle.DeploymentID, set string, args ...interface{}) error {
	res, err := s.exec(ctx, `UPDATE deployments SET `+set+` WHERE id = ?`, append(args, string(id))...)
	if err != nil {
		return persistence(err, "updating deployment")
	}
	if n, err := res.RowsAffected(); err != nil {
		return persistence(err, "updating deployment")
	} else if n == 0 {
		return store.NotFoundError("deployment", string(id))
	}
	return nil
}

func (s *DatabaseStore) MarkRouted(ctx context.Context, namespace string, routed []circle.DeploymentID) (err error) {
	defer func(begin time.Time) { observe("MarkRouted", begin, err) }(time.Now())
	return s.tx(ctx, func(s *DatabaseStore) error {
		if _, err := s.exec(ctx, `UPDATE deployments SET routed = ? WHERE namespace = ? AND routed = ?`,
			false, namespace, true); err != nil {
			return persistence(err, "clearing routed deployments")
		}
		if len(routed) == 0 {
			return nil
		}
		if _, err := s.execIn(ctx, `UPDATE deployments SET routed = ? WHERE namespace = ? AND id IN (?)`,
			true, namespace, idStrings(routed)); err != nil {
			return persistence(err, "marking routed deployments")
		}
		return nil
	})
}

func (s *DatabaseStore) SetComponentsRunning(ctx context.Context, id circle.DeploymentID, running bool) (err error) {
	defer func(begin time.Time) { observe("SetComponentsRunning", begin, err) }(time.Now())
	_, err = s.exec(ctx, `UPDATE components SET running = ? WHERE deployment_id = ?`, running, string(id))
	return persistence(err, "updating components")
}

func idStrings(ids []circle.DeploymentID) []string {
	out := make([]string, len(ids))
	for i := range ids {
		out[i] = string(ids[i])
	}
	return out
}
