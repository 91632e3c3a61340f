package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

// circleActive is true for a circle with a current deployment.
const circleActive = `EXISTS (SELECT 1 FROM deployments d WHERE d.circle_id = c.id AND d.is_current = ?)`

const circleColumns = `c.id, c.name, c.workspace_id, c.default_circle, c.created_at, ` + circleActive

func scanCircle(row scanner) (circle.Circle, error) {
	var (
		c         circle.Circle
		createdAt timestamp
	)
	if err := row.Scan(&c.ID, &c.Name, &c.WorkspaceID, &c.Default, &createdAt, &c.Active); err != nil {
		return circle.Circle{}, err
	}
	c.CreatedAt = createdAt.Time
	return c, nil
}

func (s *DatabaseStore) UpsertCircle(ctx context.Context, c circle.Circle) (err error) {
	defer func(begin time.Time) { observe("UpsertCircle", begin, err) }(time.Now())
	_, err = s.exec(ctx, `
		INSERT INTO circles (id, name, workspace_id, default_circle, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		   SET name = excluded.name,
		       workspace_id = excluded.workspace_id,
		       default_circle = excluded.default_circle`,
		string(c.ID), c.Name, c.WorkspaceID, c.Default, dbTime(c.CreatedAt))
	return persistence(err, "upserting circle")
}

func (s *DatabaseStore) GetCircle(ctx context.Context, id circle.CircleID) (c circle.Circle, err error) {
	defer func(begin time.Time) { observe("GetCircle", begin, err) }(time.Now())
	c, err = scanCircle(s.queryRow(ctx, `SELECT `+circleColumns+` FROM circles c WHERE c.id = ?`, true, string(id)))
	if err == sql.ErrNoRows {
		return circle.Circle{}, store.NotFoundError("circle", string(id))
	}
	return c, persistence(err, "getting circle")
}

func (s *DatabaseStore) ListCircles(ctx context.Context, q store.CircleQuery) (page circle.CirclePage, err error) {
	defer func(begin time.Time) { observe("ListCircles", begin, err) }(time.Now())
	req := q.PageRequest.Normalize()

	var p predicate
	if q.Name != "" {
		p.and(`LOWER(c.name) LIKE ? ESCAPE '\'`, likePattern(q.Name))
	}
	if q.WorkspaceID != "" {
		p.and(`c.workspace_id = ?`, q.WorkspaceID)
	}
	if q.Active != nil {
		if *q.Active {
			p.and(circleActive, true)
		} else {
			p.and(`NOT `+circleActive, true)
		}
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM circles c`+p.where(), p.args...)
	if err != nil {
		return page, persistence(err, "counting circles")
	}

	args := append([]interface{}{true}, p.args...)
	rows, err := s.query(ctx,
		`SELECT `+circleColumns+` FROM circles c`+p.where()+` ORDER BY c.created_at DESC, c.id LIMIT ? OFFSET ?`,
		append(args, req.Size, req.Offset())...)
	if err != nil {
		return page, persistence(err, "listing circles")
	}
	defer rows.Close()

	page = circle.CirclePage{Page: circle.NewPage(req, total), Content: []circle.Circle{}}
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return circle.CirclePage{}, persistence(err, "scanning circle")
		}
		page.Content = append(page.Content, c)
	}
	return page, persistence(rows.Err(), "listing circles")
}
