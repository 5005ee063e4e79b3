package model

import (
	"database/sql"
	"time"
)

// Project is a user's simulation workspace: one transaction log plus its
// stakeholder registry.
type Project struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Project) CreateProject(db *sql.DB) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
	INSERT INTO projects (user_id, name, description, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(p.UserID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

const projectColumns = `id, user_id, name, description, created_at, updated_at`

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var description sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return &p, nil
}

// GetProjectForUser fetches a project only if it belongs to the given user.
// Ownership is enforced here so callers cannot forget the check.
func GetProjectForUser(db *sql.DB, projectID, userID int64) (*Project, error) {
	return scanProject(db.QueryRow(
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?`, projectID, userID))
}

func ListProjectsByUser(db *sql.DB, userID int64) ([]Project, error) {
	rows, err := db.Query(
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = description.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func CountProjectsByUser(db *sql.DB, userID int64) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM projects WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

func (p *Project) UpdateProject(db *sql.DB) error {
	p.UpdatedAt = time.Now()
	stmt, err := db.Prepare(
		`UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ? AND user_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(p.Name, p.Description, p.UpdatedAt, p.ID, p.UserID)
	return err
}

// TouchProject bumps a project's updated_at. Called whenever its transaction
// log changes so project listings sort by recent activity.
func TouchProject(db *sql.DB, projectID int64) error {
	_, err := db.Exec(`UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now(), projectID)
	return err
}

// DeleteProject removes a project. Stakeholders and transactions go with it
// through the ON DELETE CASCADE foreign keys.
func DeleteProject(db *sql.DB, projectID, userID int64) (bool, error) {
	res, err := db.Exec(`DELETE FROM projects WHERE id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
