package repo

import (
	"context"
	"database/sql"
	"strings"

	"accredo/internal/domain"
)

const recordColumns = `id,worker_id,type_id,category,valid_from,valid_to,manual_status,status,lead_days,created_at,updated_at`

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s recordScanner) (domain.RequirementRecord, error) {
	var rec domain.RequirementRecord
	var validFrom, validTo, manual sql.NullString
	err := s.Scan(&rec.ID, &rec.WorkerID, &rec.TypeID, &rec.Category, &validFrom, &validTo, &manual, &rec.Status, &rec.LeadDays, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if validFrom.Valid {
		rec.ValidFrom = validFrom.String
	}
	if validTo.Valid {
		rec.ValidTo = validTo.String
	}
	if manual.Valid {
		ms := domain.RecordStatus(manual.String)
		rec.ManualStatus = &ms
	}
	return rec, nil
}

func (r Repo) InsertRecordTx(ctx context.Context, tx *sql.Tx, rec domain.RequirementRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requirement_records(`+recordColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.WorkerID, rec.TypeID, rec.Category, nullable(rec.ValidFrom), nullable(rec.ValidTo),
		nullableStatusPtr(rec.ManualStatus), rec.Status, rec.LeadDays, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r Repo) UpdateRecordTx(ctx context.Context, tx *sql.Tx, rec domain.RequirementRecord) error {
	res, err := tx.ExecContext(ctx, `UPDATE requirement_records SET valid_from=?, valid_to=?, manual_status=?, status=?, lead_days=?, updated_at=? WHERE id=?`,
		nullable(rec.ValidFrom), nullable(rec.ValidTo), nullableStatusPtr(rec.ManualStatus), rec.Status, rec.LeadDays, rec.UpdatedAt, rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRecordTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM requirement_records WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRecord(ctx context.Context, id string) (domain.RequirementRecord, error) {
	return scanRecord(r.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM requirement_records WHERE id=?`, id))
}

func (r Repo) GetRecordTx(ctx context.Context, tx *sql.Tx, id string) (domain.RequirementRecord, error) {
	return scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM requirement_records WHERE id=?`, id))
}

type RecordFilters struct {
	WorkerID        string
	TypeID          string
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRecords(ctx context.Context, f RecordFilters) ([]domain.RequirementRecord, error) {
	var clauses []string
	var args []any
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.TypeID != "" {
		clauses = append(clauses, "type_id=?")
		args = append(args, f.TypeID)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + recordColumns + ` FROM requirement_records ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RequirementRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullableStatusPtr(v *domain.RecordStatus) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return string(*v)
}
