// Package activity records a local, append-only history of what the
// operator did: logins, rule submissions, campaign dispatches. It is a
// convenience trail, not an audit log.
package activity

import (
	"context"
	"database/sql"
	"time"

	"crmline/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append records one entry. Detail may be empty.
func (w Writer) Append(ctx context.Context, typ, subject, detail string) error {
	_, err := w.DB.ExecContext(ctx,
		`INSERT INTO activity(ts,type,subject,detail) VALUES (?,?,?,?)`,
		w.now().UTC().Format(time.RFC3339), typ, subject, detail)
	return err
}

// Recent returns up to limit entries, newest first.
func (w Writer) Recent(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.DB.QueryContext(ctx,
		`SELECT id,ts,type,subject,detail FROM activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &a.Subject, &a.Detail); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
