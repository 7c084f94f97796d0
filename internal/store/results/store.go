// Package results keeps backtest runs in SQLite through gorm.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"danoo/internal/backtest"
	"danoo/internal/market"
)

var ErrNotFound = errors.New("backtest run not found")

type runModel struct {
	ID           string         `gorm:"column:id;primaryKey"`
	Symbol       string         `gorm:"column:symbol;index:idx_runs_symbol_strategy"`
	Interval     string         `gorm:"column:interval"`
	Strategy     string         `gorm:"column:strategy;index:idx_runs_symbol_strategy"`
	RegimeFilter string         `gorm:"column:regime_filter"`
	Leverage     float64        `gorm:"column:leverage"`
	Bars         int            `gorm:"column:bars"`
	TotalTrades  int            `gorm:"column:total_trades"`
	WinRate      float64        `gorm:"column:win_rate"`
	ReturnPct    float64        `gorm:"column:return_pct"`
	MaxDrawdown  float64        `gorm:"column:max_drawdown"`
	MetricsJSON  datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	ResultsJSON  datatypes.JSON `gorm:"column:results_json;type:TEXT"`
	ParamsJSON   datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
}

func (runModel) TableName() string { return "backtest_runs" }

// Run is a stored backtest with its inputs.
type Run struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Interval  string           `json:"interval"`
	Params    backtest.Params  `json:"params"`
	Results   backtest.Results `json:"results"`
	CreatedAt time.Time        `json:"created_at"`
}

// Summary is a list row without the trade payload.
type Summary struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Interval     string    `json:"interval"`
	Strategy     string    `json:"strategy"`
	RegimeFilter string    `json:"regime_filter,omitempty"`
	TotalTrades  int       `json:"total_trades"`
	WinRate      float64   `json:"win_rate"`
	ReturnPct    float64   `json:"return_pct"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("results store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save stores a run and returns its id.
func (s *Store) Save(ctx context.Context, symbol, interval string, params backtest.Params, res backtest.Results) (string, error) {
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return "", err
	}
	resultsJSON, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	m := runModel{
		ID:           uuid.NewString(),
		Symbol:       strings.ToUpper(symbol),
		Interval:     market.NormalizeInterval(interval),
		Strategy:     res.Strategy,
		RegimeFilter: string(res.RegimeFilter),
		Leverage:     res.Leverage,
		Bars:         res.Bars,
		TotalTrades:  res.Metrics.TotalTrades,
		WinRate:      res.Metrics.WinRate,
		ReturnPct:    res.Metrics.ReturnPct,
		MaxDrawdown:  res.Metrics.MaxDrawdown,
		MetricsJSON:  datatypes.JSON(metricsJSON),
		ResultsJSON:  datatypes.JSON(resultsJSON),
		ParamsJSON:   datatypes.JSON(paramsJSON),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", fmt.Errorf("save backtest run: %w", err)
	}
	return m.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	run := Run{ID: m.ID, Symbol: m.Symbol, Interval: m.Interval, CreatedAt: m.CreatedAt}
	if err := json.Unmarshal(m.ResultsJSON, &run.Results); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	if len(m.ParamsJSON) > 0 {
		if err := json.Unmarshal(m.ParamsJSON, &run.Params); err != nil {
			return Run{}, fmt.Errorf("decode params %s: %w", id, err)
		}
	}
	return run, nil
}

// List returns summaries, newest first. Empty filters match everything.
func (s *Store) List(ctx context.Context, symbol, strategy string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&runModel{})
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}
	var rows []runModel
	if err := q.Order("created_at DESC").Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, m := range rows {
		out = append(out, Summary{
			ID:           m.ID,
			Symbol:       m.Symbol,
			Interval:     m.Interval,
			Strategy:     m.Strategy,
			RegimeFilter: m.RegimeFilter,
			TotalTrades:  m.TotalTrades,
			WinRate:      m.WinRate,
			ReturnPct:    m.ReturnPct,
			MaxDrawdown:  m.MaxDrawdown,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out, nil
}
