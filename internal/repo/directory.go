package repo

import (
	"context"
	"database/sql"

	"accredo/internal/domain"
)

// Worker and requirement-type directories. Records resolve both by id on
// create; tasks deliberately do not.

func (r Repo) InsertWorkerTx(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workers(id,name,company,created_at) VALUES (?,?,?,?)`,
		w.ID, w.Name, nullable(w.Company), w.CreatedAt)
	return err
}

func (r Repo) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	var w domain.Worker
	var company sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,company,created_at FROM workers WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &company, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if company.Valid {
		w.Company = company.String
	}
	return w, err
}

func (r Repo) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,company,created_at FROM workers ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var company sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &company, &w.CreatedAt); err != nil {
			return nil, err
		}
		if company.Valid {
			w.Company = company.String
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) InsertRequirementTypeTx(ctx context.Context, tx *sql.Tx, t domain.RequirementType) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requirement_types(id,name,category,validity_days,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, t.Category, t.ValidityDays, t.CreatedAt)
	return err
}

func (r Repo) GetRequirementType(ctx context.Context, id string) (domain.RequirementType, error) {
	var t domain.RequirementType
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,category,validity_days,created_at FROM requirement_types WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Category, &t.ValidityDays, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListRequirementTypes(ctx context.Context) ([]domain.RequirementType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,category,validity_days,created_at FROM requirement_types ORDER BY category ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RequirementType
	for rows.Next() {
		var t domain.RequirementType
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &t.ValidityDays, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
