package store

import (
	"strings"
	"time"

	"enrollment-sync/internal/model"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const recordColumns = `id, email, first_name, last_name, phone, department, hiring_manager,
	course_name, prepared_to_pass, time_spent, date_enrolled, last_login, date_completed,
	percent_complete, percent_prep, percent_sim, created_at, updated_at`

const queueColumns = `id, filename, csv_url, content, file_size, total_records, imo, source_email,
	status, priority, processed_records, new_records, updated_records, error_message,
	created_at, started_at, processed_at`

// recordArgs returns the mutable record columns in recordColumns order,
// starting at email.
func recordArgs(rec model.CanonicalRecord) []any {
	return []any{
		strings.ToLower(strings.TrimSpace(rec.Email)),
		rec.FirstName,
		rec.LastName,
		rec.Phone,
		rec.Department,
		rec.HiringManager,
		rec.CourseName,
		rec.PreparedToPass,
		rec.TimeSpent,
		rec.DateEnrolled,
		rec.LastLogin,
		rec.DateCompleted,
		rec.PercentComplete,
		rec.PercentPrep,
		rec.PercentSim,
	}
}

func scanRecord(s rowScanner) (*model.StoredRecord, error) {
	var out model.StoredRecord
	r := &out.Record
	err := s.Scan(
		&out.ID, &r.Email, &r.FirstName, &r.LastName, &r.Phone, &r.Department, &r.HiringManager,
		&r.CourseName, &r.PreparedToPass, &r.TimeSpent, &r.DateEnrolled, &r.LastLogin, &r.DateCompleted,
		&r.PercentComplete, &r.PercentPrep, &r.PercentSim, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	utcPtr(r.DateEnrolled)
	utcPtr(r.LastLogin)
	utcPtr(r.DateCompleted)
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	return &out, nil
}

func queueArgs(item *model.QueueItem) []any {
	return []any{
		item.ID, item.Filename, item.CSVURL, item.Content, item.FileSize, item.TotalRecords,
		item.IMO, item.SourceEmail, string(item.Status), item.Priority, item.ProcessedRecords,
		item.NewRecords, item.UpdatedRecords, item.ErrorMessage, item.CreatedAt, item.StartedAt,
		item.ProcessedAt,
	}
}

func scanQueueItem(s rowScanner) (*model.QueueItem, error) {
	var item model.QueueItem
	var status string
	err := s.Scan(
		&item.ID, &item.Filename, &item.CSVURL, &item.Content, &item.FileSize, &item.TotalRecords,
		&item.IMO, &item.SourceEmail, &status, &item.Priority, &item.ProcessedRecords,
		&item.NewRecords, &item.UpdatedRecords, &item.ErrorMessage, &item.CreatedAt, &item.StartedAt,
		&item.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Status = model.QueueStatus(status)
	item.CreatedAt = item.CreatedAt.UTC()
	utcPtr(item.StartedAt)
	utcPtr(item.ProcessedAt)
	return &item, nil
}

func utcPtr(t *time.Time) {
	if t != nil {
		*t = (*t).UTC()
	}
}

func normalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}
