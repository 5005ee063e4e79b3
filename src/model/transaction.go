package model

import (
	"database/sql"
	"encoding/json"
	"time"
)

// TransactionRecord is the stored form of a transaction: the typed payload
// kept as JSON, with the columns needed for listing and chronological replay.
type TransactionRecord struct {
	ID        string          `json:"id"`
	ProjectID int64           `json:"project_id"`
	Type      string          `json:"type"`
	Date      string          `json:"date"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (t *TransactionRecord) CreateTransaction(db *sql.DB) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
	INSERT INTO transactions (id, project_id, tx_type, tx_date, status, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(t.ID, t.ProjectID, t.Type, t.Date, t.Status, string(t.Payload), t.CreatedAt, t.UpdatedAt)
	return err
}

func (t *TransactionRecord) UpdateTransaction(db *sql.DB) (bool, error) {
	t.UpdatedAt = time.Now()
	res, err := db.Exec(`
	UPDATE transactions SET tx_type = ?, tx_date = ?, status = ?, payload = ?, updated_at = ?
	WHERE id = ? AND project_id = ?`,
		t.Type, t.Date, t.Status, string(t.Payload), t.UpdatedAt, t.ID, t.ProjectID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func DeleteTransaction(db *sql.DB, projectID int64, transactionID string) (bool, error) {
	res, err := db.Exec(
		`DELETE FROM transactions WHERE id = ? AND project_id = ?`, transactionID, projectID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func GetTransactionByID(db *sql.DB, projectID int64, transactionID string) (*TransactionRecord, error) {
	var rec TransactionRecord
	var payload string
	err := db.QueryRow(`
	SELECT id, project_id, tx_type, tx_date, status, payload, created_at, updated_at
	FROM transactions WHERE id = ? AND project_id = ?`, transactionID, projectID).
		Scan(&rec.ID, &rec.ProjectID, &rec.Type, &rec.Date, &rec.Status, &payload, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// ListTransactionsByProject returns a project's transaction log ordered by
// date, with insertion order as the tiebreak for same-day transactions.
func ListTransactionsByProject(db *sql.DB, projectID int64) ([]TransactionRecord, error) {
	rows, err := db.Query(`
	SELECT id, project_id, tx_type, tx_date, status, payload, created_at, updated_at
	FROM transactions WHERE project_id = ? ORDER BY tx_date, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []TransactionRecord{}
	for rows.Next() {
		var rec TransactionRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Type, &rec.Date, &rec.Status, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func CountTransactionsByProject(db *sql.DB, projectID int64) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE project_id = ?`, projectID).Scan(&count)
	return count, err
}
