// backend/src/services/interfaces.go
package services

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/username/capsim/backend/src/model"
	"github.com/username/capsim/backend/src/models"
)

// Define common service errors
var (
	ErrProjectNotFound         = errors.New("project not found")
	ErrProjectLimitReached     = errors.New("project limit reached")
	ErrProjectNameTaken        = errors.New("a project with this name already exists")
	ErrStakeholderNotFound     = errors.New("stakeholder not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrTransactionLimitReached = errors.New("transaction limit reached")
	ErrParsingFailed           = errors.New("workbook parsing failed")
	ErrValidationFailed        = errors.New("transaction validation failed")
)

// ProjectService owns project, stakeholder and transaction persistence.
// Every method takes the acting user's id and enforces ownership.
type ProjectService interface {
	CreateProject(userID int64, name, description string) (*model.Project, error)
	GetProject(userID, projectID int64) (*model.Project, error)
	ListProjects(userID int64) ([]model.Project, error)
	UpdateProject(userID, projectID int64, name, description string) (*model.Project, error)
	DeleteProject(userID, projectID int64) error

	ListStakeholders(userID, projectID int64) ([]models.Stakeholder, error)
	CreateStakeholder(userID, projectID int64, name string) (*models.Stakeholder, error)
	RenameStakeholder(userID, projectID int64, stakeholderID, newName string) error

	ListTransactions(userID, projectID int64) ([]models.Transaction, error)
	AddTransaction(userID, projectID int64, payload json.RawMessage) (models.Transaction, error)
	UpdateTransaction(userID, projectID int64, transactionID string, payload json.RawMessage) (models.Transaction, error)
	DeleteTransaction(userID, projectID int64, transactionID string) error

	ImportProject(userID int64, fileReader io.Reader, format, projectName string) (*model.Project, error)
	ExportProject(userID, projectID int64, w io.Writer) error
}

// SimulationService answers point-in-time questions about a project by
// replaying its transaction log. Results are cached until the log changes.
type SimulationService interface {
	GetCapTable(userID, projectID int64, asOfDate, excludeTransactionID string) (*models.CapTable, error)
	GetWaterfall(userID, projectID int64, asOfDate string, exitProceeds, transactionCosts float64, lang string) (*models.WaterfallResult, error)
	GetVoting(userID, projectID int64, asOfDate string) (*models.VotingResult, error)
	GetTotalCapitalization(userID, projectID int64, asOfDate, lang string) (*models.TotalCapitalizationResult, error)
	InvalidateProjectCache(userID, projectID int64)
}
