// backend/src/services/simulation_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/capsim/backend/src/engine"
	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/model"
	"github.com/username/capsim/backend/src/models"
)

const (
	ckCapTable  = "sim_captable_user_%d_pf_%d_asof_%s_excl_%s"
	ckWaterfall = "sim_waterfall_user_%d_pf_%d_asof_%s_exit_%.2f_costs_%.2f_lang_%s"
	ckVoting    = "sim_voting_user_%d_pf_%d_asof_%s"
	ckTotalCap  = "sim_totalcap_user_%d_pf_%d_asof_%s_lang_%s"

	DefaultCacheExpiration = 10 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type simulationServiceImpl struct {
	db          *sql.DB
	engine      *engine.Engine
	reportCache *cache.Cache
}

// NewSimulationService wires the replay engine behind a result cache. The
// cache must be the same instance the project service invalidates on writes.
func NewSimulationService(db *sql.DB, eng *engine.Engine, reportCache *cache.Cache) SimulationService {
	return &simulationServiceImpl{
		db:          db,
		engine:      eng,
		reportCache: reportCache,
	}
}

// loadActiveTransactions fetches a project's log for the given user and
// returns only ACTIVE transactions, in chronological order. Drafts and
// archived entries never reach the engine.
func (s *simulationServiceImpl) loadActiveTransactions(userID, projectID int64) ([]models.Transaction, error) {
	if _, err := model.GetProjectForUser(s.db, projectID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("fetching project: %w", err)
	}

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
	return models.FilterActive(txs), nil
}

func defaultAsOfDate(asOfDate string) string {
	if asOfDate == "" {
		return time.Now().Format("2006-01-02")
	}
	return asOfDate
}

func (s *simulationServiceImpl) GetCapTable(userID, projectID int64, asOfDate, excludeTransactionID string) (*models.CapTable, error) {
	asOfDate = defaultAsOfDate(asOfDate)
	cacheKey := fmt.Sprintf(ckCapTable, userID, projectID, asOfDate, excludeTransactionID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.CapTable), nil
	}

	txs, err := s.loadActiveTransactions(userID, projectID)
	if err != nil {
		return nil, err
	}
	result := s.engine.CapTable(txs, asOfDate, excludeTransactionID)

	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *simulationServiceImpl) GetWaterfall(userID, projectID int64, asOfDate string, exitProceeds, transactionCosts float64, lang string) (*models.WaterfallResult, error) {
	asOfDate = defaultAsOfDate(asOfDate)
	labels := engine.LabelsFor(lang)
	cacheKey := fmt.Sprintf(ckWaterfall, userID, projectID, asOfDate, exitProceeds, transactionCosts, lang)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.WaterfallResult), nil
	}

	txs, err := s.loadActiveTransactions(userID, projectID)
	if err != nil {
		return nil, err
	}
	capTable := s.engine.CapTable(txs, asOfDate, "")
	result := s.engine.Waterfall(capTable, txs, exitProceeds, transactionCosts, labels)

	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *simulationServiceImpl) GetVoting(userID, projectID int64, asOfDate string) (*models.VotingResult, error) {
	asOfDate = defaultAsOfDate(asOfDate)
	cacheKey := fmt.Sprintf(ckVoting, userID, projectID, asOfDate)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.VotingResult), nil
	}

	txs, err := s.loadActiveTransactions(userID, projectID)
	if err != nil {
		return nil, err
	}
	capTable := s.engine.CapTable(txs, asOfDate, "")
	result := s.engine.Vote(capTable, txs)

	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *simulationServiceImpl) GetTotalCapitalization(userID, projectID int64, asOfDate, lang string) (*models.TotalCapitalizationResult, error) {
	asOfDate = defaultAsOfDate(asOfDate)
	labels := engine.LabelsFor(lang)
	cacheKey := fmt.Sprintf(ckTotalCap, userID, projectID, asOfDate, lang)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.TotalCapitalizationResult), nil
	}

	txs, err := s.loadActiveTransactions(userID, projectID)
	if err != nil {
		return nil, err
	}
	capTable := s.engine.CapTable(txs, asOfDate, "")
	result := s.engine.TotalCapitalization(capTable, txs, labels)

	s.reportCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *simulationServiceImpl) InvalidateProjectCache(userID, projectID int64) {
	marker := fmt.Sprintf("user_%d_pf_%d_", userID, projectID)
	for key := range s.reportCache.Items() {
		if strings.Contains(key, marker) {
			s.reportCache.Delete(key)
		}
	}
}
