// Package storage persists analysis results, trade logs and brokerage
// tokens to a relational database.
package storage

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantdesk/options-desk/types"
)

// Store wraps the database handle with the dashboard's queries.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres and runs migrations.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	log.Info("database connection established")

	return store, nil
}

// NewStore wraps an existing handle. Useful for tests.
func NewStore(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&AnalysisRecord{}); err != nil {
		return fmt.Errorf("failed to migrate analysis records: %w", err)
	}
	if err := s.db.AutoMigrate(&TradeLogRecord{}); err != nil {
		return fmt.Errorf("failed to migrate trade logs: %w", err)
	}
	if err := s.db.AutoMigrate(&TokenRecord{}); err != nil {
		return fmt.Errorf("failed to migrate token records: %w", err)
	}
	return nil
}

// SaveAnalysis persists a report.
func (s *Store) SaveAnalysis(report *types.AnalysisReport) error {
	record, err := NewAnalysisRecord(report)
	if err != nil {
		return fmt.Errorf("SaveAnalysis: %w", err)
	}

	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("SaveAnalysis: %w", err)
	}

	log.Debugf("saved analysis %s for %s (%d DTE)", report.ID, report.Ticker, report.DTE)

	return nil
}

// LatestAnalysis returns the most recent report for a ticker, or nil when
// none exists.
func (s *Store) LatestAnalysis(ticker string) (*types.AnalysisReport, error) {
	var record AnalysisRecord
	err := s.db.Where("ticker = ?", ticker).Order("created_at DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestAnalysis: %w", err)
	}
	return record.ToReport()
}

// ListAnalyses returns reports for the library page, newest first. Prompt
// bodies are omitted to keep the payload small.
func (s *Store) ListAnalyses(ticker string, limit, offset int) ([]types.AnalysisReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.Model(&AnalysisRecord{}).Order("created_at DESC").Limit(limit).Offset(offset)
	if ticker != "" {
		query = query.Where("ticker = ?", ticker)
	}

	var records []AnalysisRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("ListAnalyses: %w", err)
	}

	reports := make([]types.AnalysisReport, 0, len(records))
	for _, record := range records {
		report, err := record.ToReport()
		if err != nil {
			return nil, fmt.Errorf("ListAnalyses: %w", err)
		}
		report.Prompt = ""
		reports = append(reports, *report)
	}

	return reports, nil
}

// SaveTradeLog persists a trade entry.
func (s *Store) SaveTradeLog(trade *TradeLogRecord) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("SaveTradeLog: %w", err)
	}
	return nil
}

// ErrTradeNotFound is returned when closing a trade that does not exist.
var ErrTradeNotFound = errors.New("trade not found")

// CloseTrade marks a trade closed with its exit price and realized P&L.
func (s *Store) CloseTrade(id uint, exitPrice float64) error {
	var trade TradeLogRecord
	if err := s.db.First(&trade, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("CloseTrade: %w", ErrTradeNotFound)
		}
		return fmt.Errorf("CloseTrade: %w", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      TradeStatusClosed,
		"exit_price":  exitPrice,
		"profit_loss": (exitPrice - trade.EntryPrice) * float64(trade.Quantity) * 100,
		"closed_at":   &now,
	}
	if err := s.db.Model(&trade).Updates(updates).Error; err != nil {
		return fmt.Errorf("CloseTrade: %w", err)
	}
	return nil
}

// PerformanceSummary aggregates closed trades for the public scoreboard.
type PerformanceSummary struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
}

// Performance computes the closed-trade summary.
func (s *Store) Performance() (*PerformanceSummary, error) {
	var trades []TradeLogRecord
	if err := s.db.Where("status = ?", TradeStatusClosed).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("Performance: %w", err)
	}

	summary := &PerformanceSummary{TotalTrades: len(trades)}
	for _, trade := range trades {
		summary.TotalPnL += trade.ProfitLoss
		if trade.ProfitLoss > 0 {
			summary.Wins++
		} else {
			summary.Losses++
		}
	}
	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.Wins) / float64(summary.TotalTrades) * 100
	}

	return summary, nil
}

// SaveTokens upserts the token pair for an environment.
func (s *Store) SaveTokens(environment, accessToken, refreshToken string, expiresAt *time.Time) error {
	record := TokenRecord{
		Environment:  environment,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}

	err := s.db.Where("environment = ?", environment).
		Assign(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
		}).
		FirstOrCreate(&record).Error
	if err != nil {
		return fmt.Errorf("SaveTokens: %w", err)
	}
	return nil
}

// LoadTokens returns the stored tokens for an environment, or empty strings
// when none exist.
func (s *Store) LoadTokens(environment string) (accessToken, refreshToken string, err error) {
	var record TokenRecord
	dbErr := s.db.Where("environment = ?", environment).First(&record).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return "", "", nil
	}
	if dbErr != nil {
		return "", "", fmt.Errorf("LoadTokens: %w", dbErr)
	}
	return record.AccessToken, record.RefreshToken, nil
}

// CleanOldAnalyses deletes analysis records older than the threshold and
// returns how many were removed.
func (s *Store) CleanOldAnalyses(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.Unscoped().Where("created_at < ?", cutoff).Delete(&AnalysisRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("CleanOldAnalyses: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Infof("cleaned %d analysis records older than %s", result.RowsAffected, cutoff.Format("2006-01-02"))
	}

	return result.RowsAffected, nil
}
