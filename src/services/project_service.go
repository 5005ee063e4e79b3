// backend/src/services/project_service.go
package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/capsim/backend/src/config"
	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/model"
	"github.com/username/capsim/backend/src/models"
	"github.com/username/capsim/backend/src/parsers"
	"github.com/username/capsim/backend/src/parsers/captable"
	"github.com/username/capsim/backend/src/security/validation"
)

type projectServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
	newID       func() string
}

// NewProjectService creates the project persistence service. The cache is
// shared with the simulation service so log mutations can drop stale results.
func NewProjectService(db *sql.DB, reportCache *cache.Cache) ProjectService {
	return &projectServiceImpl{
		db:          db,
		reportCache: reportCache,
		newID:       uuid.NewString,
	}
}

func cleanName(s string) string {
	return strings.TrimSpace(validation.SanitizeText(validation.StripUnprintable(s)))
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Projects ---

func (s *projectServiceImpl) CreateProject(userID int64, name, description string) (*model.Project, error) {
	name = cleanName(name)
	if err := validation.ValidateStringNotEmpty(name, "project name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "project name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	description = cleanName(description)
	if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "project description"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	count, err := model.CountProjectsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}
	if count >= config.Cfg.MaxProjectsPerUser {
		return nil, ErrProjectLimitReached
	}

	project := &model.Project{UserID: userID, Name: name, Description: description}
	if err := project.CreateProject(s.db); err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProjectNameTaken
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	logger.L.Info("Project created", "userID", userID, "projectID", project.ID, "name", project.Name)
	return project, nil
}

func (s *projectServiceImpl) GetProject(userID, projectID int64) (*model.Project, error) {
	project, err := model.GetProjectForUser(s.db, projectID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("fetching project: %w", err)
	}
	return project, nil
}

func (s *projectServiceImpl) ListProjects(userID int64) ([]model.Project, error) {
	return model.ListProjectsByUser(s.db, userID)
}

func (s *projectServiceImpl) UpdateProject(userID, projectID int64, name, description string) (*model.Project, error) {
	project, err := s.GetProject(userID, projectID)
	if err != nil {
		return nil, err
	}

	name = cleanName(name)
	if err := validation.ValidateStringNotEmpty(name, "project name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "project name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	project.Name = name
	project.Description = cleanName(description)

	if err := project.UpdateProject(s.db); err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProjectNameTaken
		}
		return nil, fmt.Errorf("updating project: %w", err)
	}
	return project, nil
}

func (s *projectServiceImpl) DeleteProject(userID, projectID int64) error {
	deleted, err := model.DeleteProject(s.db, projectID, userID)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if !deleted {
		return ErrProjectNotFound
	}
	s.invalidateProjectCache(userID, projectID)
	logger.L.Info("Project deleted", "userID", userID, "projectID", projectID)
	return nil
}

// --- Stakeholders ---

func (s *projectServiceImpl) ListStakeholders(userID, projectID int64) ([]models.Stakeholder, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	return model.ListStakeholdersByProject(s.db, projectID)
}

func (s *projectServiceImpl) CreateStakeholder(userID, projectID int64, name string) (*models.Stakeholder, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	name = cleanName(name)
	if err := validation.ValidateStringNotEmpty(name, "stakeholder name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "stakeholder name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	sh := models.Stakeholder{ID: s.newID(), Name: name}
	if err := model.InsertStakeholder(s.db, projectID, sh); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: a stakeholder named '%s' already exists", ErrValidationFailed, name)
		}
		return nil, fmt.Errorf("creating stakeholder: %w", err)
	}
	return &sh, nil
}

func (s *projectServiceImpl) RenameStakeholder(userID, projectID int64, stakeholderID, newName string) error {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return err
	}
	newName = cleanName(newName)
	if err := validation.ValidateStringNotEmpty(newName, "stakeholder name"); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	renamed, err := model.RenameStakeholder(s.db, projectID, stakeholderID, newName)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: a stakeholder named '%s' already exists", ErrValidationFailed, newName)
		}
		return fmt.Errorf("renaming stakeholder: %w", err)
	}
	if !renamed {
		return ErrStakeholderNotFound
	}
	return nil
}

// --- Transactions ---

func (s *projectServiceImpl) ListTransactions(userID, projectID int64) ([]models.Transaction, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	return s.loadTransactions(projectID)
}

func (s *projectServiceImpl) loadTransactions(projectID int64) ([]models.Transaction, error) {
	records, err := model.ListTransactionsByProject(s.db, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	txs := make([]models.Transaction, 0, len(records))
	for _, rec := range records {
		tx, err := models.UnmarshalTransaction(rec.Payload)
		if err != nil {
			logger.L.Warn("Skipping undecodable transaction payload", "projectID", projectID, "transactionID", rec.ID, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *projectServiceImpl) AddTransaction(userID, projectID int64, payload json.RawMessage) (models.Transaction, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}

	count, err := model.CountTransactionsByProject(s.db, projectID)
	if err != nil {
		return nil, fmt.Errorf("counting transactions: %w", err)
	}
	if count >= config.Cfg.MaxTransactionsPerProject {
		return nil, ErrTransactionLimitReached
	}

	tx, err := models.UnmarshalTransaction(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := s.normalizeTransaction(tx, true); err != nil {
		return nil, err
	}

	rec, err := s.toRecord(projectID, tx)
	if err != nil {
		return nil, err
	}
	if err := rec.CreateTransaction(s.db); err != nil {
		return nil, fmt.Errorf("storing transaction: %w", err)
	}

	s.registerStakeholders(projectID, tx)
	if err := model.TouchProject(s.db, projectID); err != nil {
		logger.L.Warn("Failed to touch project after transaction insert", "projectID", projectID, "error", err)
	}
	s.invalidateProjectCache(userID, projectID)
	return tx, nil
}

func (s *projectServiceImpl) UpdateTransaction(userID, projectID int64, transactionID string, payload json.RawMessage) (models.Transaction, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	if _, err := model.GetTransactionByID(s.db, projectID, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("fetching transaction: %w", err)
	}

	tx, err := models.UnmarshalTransaction(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	tx.Base().ID = transactionID
	if err := s.normalizeTransaction(tx, false); err != nil {
		return nil, err
	}

	rec, err := s.toRecord(projectID, tx)
	if err != nil {
		return nil, err
	}
	updated, err := rec.UpdateTransaction(s.db)
	if err != nil {
		return nil, fmt.Errorf("updating transaction: %w", err)
	}
	if !updated {
		return nil, ErrTransactionNotFound
	}

	s.registerStakeholders(projectID, tx)
	if err := model.TouchProject(s.db, projectID); err != nil {
		logger.L.Warn("Failed to touch project after transaction update", "projectID", projectID, "error", err)
	}
	s.invalidateProjectCache(userID, projectID)
	return tx, nil
}

func (s *projectServiceImpl) DeleteTransaction(userID, projectID int64, transactionID string) error {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return err
	}
	deleted, err := model.DeleteTransaction(s.db, projectID, transactionID)
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	if !deleted {
		return ErrTransactionNotFound
	}
	if err := model.TouchProject(s.db, projectID); err != nil {
		logger.L.Warn("Failed to touch project after transaction delete", "projectID", projectID, "error", err)
	}
	s.invalidateProjectCache(userID, projectID)
	return nil
}

func (s *projectServiceImpl) toRecord(projectID int64, tx models.Transaction) (*model.TransactionRecord, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction payload: %w", err)
	}
	base := tx.Base()
	return &model.TransactionRecord{
		ID:        base.ID,
		ProjectID: projectID,
		Type:      string(base.Type),
		Date:      base.Date,
		Status:    string(base.Status),
		Payload:   payload,
	}, nil
}

// normalizeTransaction validates the base fields, fills missing ids and
// sanitizes every user-supplied name before a transaction is persisted.
func (s *projectServiceImpl) normalizeTransaction(tx models.Transaction, assignID bool) error {
	base := tx.Base()
	if assignID && base.ID == "" {
		base.ID = s.newID()
	}
	if base.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidationFailed)
	}

	if _, err := validation.ValidateISODateString(base.Date, "transaction date"); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	switch base.Status {
	case "":
		base.Status = models.StatusActive
	case models.StatusDraft, models.StatusActive, models.StatusArchived:
	default:
		return fmt.Errorf("%w: unknown transaction status %q", ErrValidationFailed, base.Status)
	}
	if base.ValidFrom == "" {
		base.ValidFrom = base.Date
	} else if _, err := validation.ValidateISODateString(base.ValidFrom, "validFrom"); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if base.ValidTo != "" {
		if _, err := validation.ValidateISODateString(base.ValidTo, "validTo"); err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}

	switch t := tx.(type) {
	case *models.FoundingTransaction:
		t.CompanyName = cleanName(t.CompanyName)
		t.LegalForm = cleanName(t.LegalForm)
		if err := validation.ValidateStringNotEmpty(t.CompanyName, "company name"); err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		for i := range t.ShareClasses {
			s.normalizeShareClass(&t.ShareClasses[i])
		}
		for i := range t.VestingSchedules {
			if t.VestingSchedules[i].ID == "" {
				t.VestingSchedules[i].ID = s.newID()
			}
			t.VestingSchedules[i].Name = cleanName(t.VestingSchedules[i].Name)
		}
		if err := s.normalizeShareholdings(t.Shareholdings); err != nil {
			return err
		}
	case *models.ConvertibleLoanTransaction:
		t.InvestorName = cleanName(t.InvestorName)
		if t.Amount <= 0 {
			return fmt.Errorf("%w: loan amount must be positive", ErrValidationFailed)
		}
		if t.InterestRate < 0 {
			return fmt.Errorf("%w: interest rate cannot be negative", ErrValidationFailed)
		}
		if t.Discount < 0 || t.Discount >= 1 {
			return fmt.Errorf("%w: discount must be in [0, 1)", ErrValidationFailed)
		}
		if t.ConversionMechanism == "" {
			t.ConversionMechanism = models.MechanismCapAndDiscount
		}
		if t.Seniority == "" {
			t.Seniority = models.SenioritySubordinated
		}
	case *models.FinancingRoundTransaction:
		t.RoundName = cleanName(t.RoundName)
		if t.PreMoneyValuation < 0 {
			return fmt.Errorf("%w: pre-money valuation cannot be negative", ErrValidationFailed)
		}
		s.normalizeShareClass(&t.NewShareClass)
		for i := range t.NewShareholdings {
			if t.NewShareholdings[i].ShareClassID == "" {
				t.NewShareholdings[i].ShareClassID = t.NewShareClass.ID
			}
		}
		if err := s.normalizeShareholdings(t.NewShareholdings); err != nil {
			return err
		}
	case *models.ShareTransferTransaction:
		t.BuyerStakeholderName = cleanName(t.BuyerStakeholderName)
		if t.NumberOfShares <= 0 {
			return fmt.Errorf("%w: number of shares must be positive", ErrValidationFailed)
		}
		if t.PricePerShare < 0 {
			return fmt.Errorf("%w: price per share cannot be negative", ErrValidationFailed)
		}
	case *models.DebtInstrumentTransaction:
		t.LenderName = cleanName(t.LenderName)
		if t.Amount <= 0 {
			return fmt.Errorf("%w: debt amount must be positive", ErrValidationFailed)
		}
		if t.InterestRate < 0 {
			return fmt.Errorf("%w: interest rate cannot be negative", ErrValidationFailed)
		}
		if t.Seniority == "" {
			t.Seniority = models.SenioritySubordinated
		}
	case *models.UpdateShareClassTransaction:
		if t.ShareClassIDToUpdate == "" {
			return fmt.Errorf("%w: shareClassIdToUpdate is required", ErrValidationFailed)
		}
		if t.UpdatedProperties.Name != nil {
			clean := cleanName(*t.UpdatedProperties.Name)
			t.UpdatedProperties.Name = &clean
		}
	}
	return nil
}

func (s *projectServiceImpl) normalizeShareClass(sc *models.ShareClass) {
	if sc.ID == "" {
		sc.ID = s.newID()
	}
	sc.Name = cleanName(sc.Name)
	if sc.LiquidationPreferenceType == "" {
		sc.LiquidationPreferenceType = models.PrefNonParticipating
	}
	if sc.AntiDilutionProtection == "" {
		sc.AntiDilutionProtection = models.AntiDilutionNone
	}
	if sc.LiquidationPreferenceFactor == 0 {
		sc.LiquidationPreferenceFactor = 1
	}
	if sc.VotesPerShare == 0 {
		sc.VotesPerShare = 1
	}
}

func (s *projectServiceImpl) normalizeShareholdings(holdings []models.Shareholding) error {
	for i := range holdings {
		if holdings[i].ID == "" {
			holdings[i].ID = s.newID()
		}
		holdings[i].StakeholderName = cleanName(holdings[i].StakeholderName)
		if holdings[i].Shares < 0 {
			return fmt.Errorf("%w: shares cannot be negative", ErrValidationFailed)
		}
		if holdings[i].Investment < 0 {
			return fmt.Errorf("%w: investment cannot be negative", ErrValidationFailed)
		}
	}
	return nil
}

// registerStakeholders lazily adds any stakeholder a transaction references
// to the project's registry. Failures are logged, not fatal: the registry is
// a convenience index, the transaction log stays the source of truth.
func (s *projectServiceImpl) registerStakeholders(projectID int64, tx models.Transaction) {
	type ref struct{ id, name string }
	var refs []ref

	switch t := tx.(type) {
	case *models.FoundingTransaction:
		for _, sh := range t.Shareholdings {
			refs = append(refs, ref{sh.StakeholderID, sh.StakeholderName})
		}
	case *models.FinancingRoundTransaction:
		for _, sh := range t.NewShareholdings {
			refs = append(refs, ref{sh.StakeholderID, sh.StakeholderName})
		}
	case *models.ConvertibleLoanTransaction:
		refs = append(refs, ref{t.StakeholderID, t.InvestorName})
	case *models.ShareTransferTransaction:
		refs = append(refs, ref{t.BuyerStakeholderID, t.BuyerStakeholderName})
	}

	for _, r := range refs {
		if r.id == "" || r.name == "" {
			continue
		}
		if _, err := model.GetStakeholder(s.db, projectID, r.id); err == nil {
			continue
		}
		if err := model.InsertStakeholder(s.db, projectID, models.Stakeholder{ID: r.id, Name: r.name}); err != nil {
			if !isUniqueConstraintError(err) {
				logger.L.Warn("Failed to register stakeholder", "projectID", projectID, "stakeholderID", r.id, "error", err)
			}
		}
	}
}

// --- Import / Export ---

func (s *projectServiceImpl) ImportProject(userID int64, fileReader io.Reader, format, projectName string) (*model.Project, error) {
	count, err := model.CountProjectsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}
	if count >= config.Cfg.MaxProjectsPerUser {
		return nil, ErrProjectLimitReached
	}

	parser, err := parsers.GetParser(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	imported, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if len(imported.Transactions) > config.Cfg.MaxTransactionsPerProject {
		return nil, ErrTransactionLimitReached
	}

	name := cleanName(projectName)
	if name == "" {
		name = cleanName(imported.ProjectName)
	}
	if name == "" {
		name = "Imported Project " + time.Now().Format("2006-01-02 15:04")
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting import transaction: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now()
	res, err := dbTx.Exec(
		`INSERT INTO projects (user_id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, "", now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProjectNameTaken
		}
		return nil, fmt.Errorf("creating imported project: %w", err)
	}
	projectID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading imported project id: %w", err)
	}

	for _, sh := range imported.Stakeholders {
		if _, err := dbTx.Exec(
			`INSERT INTO stakeholders (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
			sh.ID, projectID, sh.Name, now); err != nil {
			return nil, fmt.Errorf("importing stakeholder '%s': %w", sh.Name, err)
		}
	}

	for _, tx := range imported.Transactions {
		payload, err := json.Marshal(tx)
		if err != nil {
			return nil, fmt.Errorf("encoding imported transaction: %w", err)
		}
		base := tx.Base()
		if _, err := dbTx.Exec(`
		INSERT INTO transactions (id, project_id, tx_type, tx_date, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			base.ID, projectID, string(base.Type), base.Date, string(base.Status), string(payload), now, now); err != nil {
			return nil, fmt.Errorf("importing transaction %s: %w", base.ID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}

	logger.L.Info("Project imported", "userID", userID, "projectID", projectID,
		"stakeholders", len(imported.Stakeholders), "transactions", len(imported.Transactions))
	return &model.Project{ID: projectID, UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *projectServiceImpl) ExportProject(userID, projectID int64, w io.Writer) error {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return err
	}
	stakeholders, err := model.ListStakeholdersByProject(s.db, projectID)
	if err != nil {
		return fmt.Errorf("listing stakeholders: %w", err)
	}
	txs, err := s.loadTransactions(projectID)
	if err != nil {
		return err
	}
	return captable.Export(w, stakeholders, txs)
}

// invalidateProjectCache drops every cached simulation result for a project.
func (s *projectServiceImpl) invalidateProjectCache(userID, projectID int64) {
	marker := fmt.Sprintf("user_%d_pf_%d_", userID, projectID)
	for key := range s.reportCache.Items() {
		if strings.Contains(key, marker) {
			s.reportCache.Delete(key)
		}
	}
}
