package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quantdesk/options-desk/types"
)

// AnalysisRecord persists one AI analysis run.
type AnalysisRecord struct {
	gorm.Model
	RequestID       uuid.UUID `gorm:"column:request_id;type:uuid;not null;index:idx_analysis_request"`
	Ticker          string    `gorm:"column:ticker;type:varchar(16);not null;index:idx_analysis_ticker"`
	DTE             int       `gorm:"column:dte;not null"`
	ExpirationDate  string    `gorm:"column:expiration_date;type:varchar(10)"`
	Prompt          string    `gorm:"column:prompt;type:text"`
	Response        string    `gorm:"column:response;type:text;not null"`
	Recommendations string    `gorm:"column:recommendations;type:jsonb"`
}

// NewAnalysisRecord converts a report into its persisted form.
func NewAnalysisRecord(report *types.AnalysisReport) (*AnalysisRecord, error) {
	requestID, err := uuid.Parse(report.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid report id %q: %w", report.ID, err)
	}

	recs, err := json.Marshal(report.Recommendations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recommendations: %w", err)
	}

	return &AnalysisRecord{
		RequestID:       requestID,
		Ticker:          report.Ticker,
		DTE:             report.DTE,
		ExpirationDate:  report.ExpirationDate,
		Prompt:          report.Prompt,
		Response:        report.Response,
		Recommendations: string(recs),
	}, nil
}

// ToReport converts the record back into the domain type.
func (r *AnalysisRecord) ToReport() (*types.AnalysisReport, error) {
	report := &types.AnalysisReport{
		ID:             r.RequestID.String(),
		Ticker:         r.Ticker,
		DTE:            r.DTE,
		ExpirationDate: r.ExpirationDate,
		Prompt:         r.Prompt,
		Response:       r.Response,
		CreatedAt:      r.CreatedAt,
	}

	if r.Recommendations != "" {
		if err := json.Unmarshal([]byte(r.Recommendations), &report.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
	}

	return report, nil
}

// TradeLogRecord persists one trade taken from an analysis, for the public
// performance page.
type TradeLogRecord struct {
	gorm.Model
	AnalysisID uint       `gorm:"column:analysis_id;index:idx_trade_analysis"`
	Ticker     string     `gorm:"column:ticker;type:varchar(16);not null"`
	Strategy   string     `gorm:"column:strategy;type:varchar(32);not null"`
	Direction  string     `gorm:"column:direction;type:varchar(16)"`
	Strikes    string     `gorm:"column:strikes;type:varchar(64)"`
	Expiration string     `gorm:"column:expiration;type:varchar(10)"`
	EntryPrice float64    `gorm:"column:entry_price;type:numeric"`
	ExitPrice  float64    `gorm:"column:exit_price;type:numeric"`
	Quantity   int        `gorm:"column:quantity;not null;default:1"`
	Status     string     `gorm:"column:status;type:varchar(16);not null;default:'open'"`
	ProfitLoss float64    `gorm:"column:profit_loss;type:numeric"`
	ClosedAt   *time.Time `gorm:"column:closed_at"`
}

// Trade statuses.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// TokenRecord persists brokerage tokens per environment so the dashboard
// survives restarts without a fresh login.
type TokenRecord struct {
	gorm.Model
	Environment  string     `gorm:"column:environment;type:varchar(16);not null;uniqueIndex:idx_token_environment"`
	AccessToken  string     `gorm:"column:access_token;type:text;not null"`
	RefreshToken string     `gorm:"column:refresh_token;type:text"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
}
