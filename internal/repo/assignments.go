package repo

import (
	"context"
	"database/sql"

	"accredo/internal/domain"
)

func (r Repo) UpsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assignments(project_id,role,person_id,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id,role) DO UPDATE SET person_id=excluded.person_id, updated_at=excluded.updated_at`,
		a.ProjectID, a.Role, a.PersonID, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, projectID string, role domain.Role) (domain.Assignment, error) {
	var a domain.Assignment
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,role,person_id,created_at,updated_at FROM assignments WHERE project_id=? AND role=?`,
		projectID, role).Scan(&a.ProjectID, &a.Role, &a.PersonID, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAssignments(ctx context.Context, projectID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,role,person_id,created_at,updated_at FROM assignments WHERE project_id=? ORDER BY role ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ProjectID, &a.Role, &a.PersonID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAssignmentTx(ctx context.Context, tx *sql.Tx, projectID string, role domain.Role) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE project_id=? AND role=?`, projectID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
