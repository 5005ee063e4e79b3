package model

import (
	"database/sql"
	"time"

	"github.com/username/capsim/backend/src/models"
)

func InsertStakeholder(db *sql.DB, projectID int64, sh models.Stakeholder) error {
	stmt, err := db.Prepare(
		`INSERT INTO stakeholders (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(sh.ID, projectID, sh.Name, time.Now())
	return err
}

func ListStakeholdersByProject(db *sql.DB, projectID int64) ([]models.Stakeholder, error) {
	rows, err := db.Query(
		`SELECT id, name FROM stakeholders WHERE project_id = ? ORDER BY name COLLATE NOCASE`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stakeholders := []models.Stakeholder{}
	for rows.Next() {
		var sh models.Stakeholder
		if err := rows.Scan(&sh.ID, &sh.Name); err != nil {
			return nil, err
		}
		stakeholders = append(stakeholders, sh)
	}
	return stakeholders, rows.Err()
}

func GetStakeholder(db *sql.DB, projectID int64, stakeholderID string) (*models.Stakeholder, error) {
	var sh models.Stakeholder
	err := db.QueryRow(
		`SELECT id, name FROM stakeholders WHERE project_id = ? AND id = ?`, projectID, stakeholderID).
		Scan(&sh.ID, &sh.Name)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func RenameStakeholder(db *sql.DB, projectID int64, stakeholderID, newName string) (bool, error) {
	res, err := db.Exec(
		`UPDATE stakeholders SET name = ? WHERE project_id = ? AND id = ?`, newName, projectID, stakeholderID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
