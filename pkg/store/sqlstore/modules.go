package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

func (s *DatabaseStore) GetModule(ctx context.Context, id circle.ModuleID) (m circle.Module, err error) {
	defer func(begin time.Time) { observe("GetModule", begin, err) }(time.Now())

	var createdAt timestamp
	err = s.queryRow(ctx, `SELECT id, name, created_at FROM modules WHERE id = ?`, string(id)).
		Scan(&m.ID, &m.Name, &createdAt)
	if err == sql.ErrNoRows {
		return circle.Module{}, store.NotFoundError("module", string(id))
	} else if err != nil {
		return circle.Module{}, persistence(err, "getting module")
	}
	m.CreatedAt = createdAt.Time

	rows, err := s.query(ctx, `
		SELECT id, name, latency_threshold, error_threshold
		  FROM module_components WHERE module_id = ? ORDER BY id`, string(id))
	if err != nil {
		return circle.Module{}, persistence(err, "listing module components")
	}
	defer rows.Close()
	for rows.Next() {
		var c circle.ModuleComponent
		if err := rows.Scan(&c.ID, &c.Name, &c.LatencyThreshold, &c.ErrorThreshold); err != nil {
			return circle.Module{}, persistence(err, "scanning module component")
		}
		m.Components = append(m.Components, c)
	}
	return m, persistence(rows.Err(), "listing module components")
}

// CreateModule records the module and its components. If the module
// exists already, an error satisfying IsAlreadyExists is returned.
func (s *DatabaseStore) CreateModule(ctx context.Context, m circle.Module) (err error) {
	defer func(begin time.Time) { observe("CreateModule", begin, err) }(time.Now())
	return s.tx(ctx, func(s *DatabaseStore) error {
		if _, err := s.exec(ctx, `INSERT INTO modules (id, name, created_at) VALUES (?, ?, ?)`,
			string(m.ID), m.Name, dbTime(m.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return store.AlreadyExistsError("module", string(m.ID))
			}
			return persistence(err, "inserting module")
		}
		return s.insertModuleComponents(ctx, m.ID, m.Components)
	})
}

// AddModuleComponents adds components to a module. Components it
// already has, by id, are left as they are.
func (s *DatabaseStore) AddModuleComponents(ctx context.Context, id circle.ModuleID, components []circle.ModuleComponent) (err error) {
	defer func(begin time.Time) { observe("AddModuleComponents", begin, err) }(time.Now())
	return s.tx(ctx, func(s *DatabaseStore) error {
		return s.insertModuleComponents(ctx, id, components)
	})
}

func (s *DatabaseStore) insertModuleComponents(ctx context.Context, id circle.ModuleID, components []circle.ModuleComponent) error {
	for _, c := range components {
		if _, err := s.exec(ctx, `
			INSERT INTO module_components (module_id, id, name, latency_threshold, error_threshold)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (module_id, id) DO NOTHING`,
			string(id), string(c.ID), c.Name, c.LatencyThreshold, c.ErrorThreshold); err != nil {
			return persistence(err, "inserting module component")
		}
	}
	return nil
}
