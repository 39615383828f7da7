package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DruboPaul/web-surveyscriber/internal/usage"
)

type UsageRepository interface {
	SaveUsage(ctx context.Context, batchID string, totals usage.Totals) error
	Summary(ctx context.Context, now time.Time) (*UsageSummary, error)
	Records(ctx context.Context, since time.Time) ([]UsageRecord, error)
}

// UsageSummary is the rollup served by the usage endpoint.
type UsageSummary struct {
	WeekTokens    int          `json:"week_tokens"`
	WeekCostCents int          `json:"week_cost_cents"`
	MonthTokens   int          `json:"month_tokens"`
	MonthCost     int          `json:"month_cost_cents"`
	Daily         []DailyUsage `json:"daily"`
}

type DailyUsage struct {
	Date      string `json:"date"`
	Tokens    int    `json:"tokens"`
	CostCents int    `json:"cost_cents"`
}

// UsageRecord is one row of the downloadable usage report.
type UsageRecord struct {
	BatchID          string
	Provider         string
	Model            string
	Images           int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostCents        int
	CreatedAt        time.Time
}

type usageRepo struct {
	db  *DB
	log *slog.Logger
}

func NewUsageRepository(db *DB, log *slog.Logger) UsageRepository {
	if log == nil {
		log = slog.Default()
	}
	return &usageRepo{db: db, log: log}
}

func (r *usageRepo) SaveUsage(ctx context.Context, batchID string, totals usage.Totals) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO usage_history (id, batch_id, provider, model, images_processed, prompt_tokens, completion_tokens, total_tokens, cost_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), batchID, totals.Provider, totals.Model, totals.Images,
		totals.PromptTokens, totals.CompletionTokens,
		totals.TotalTokens, totals.CostCents, time.Now().UTC())
	if err != nil {
		r.log.Error("usage save failed", "batch_id", batchID, "err", err)
		return err
	}
	r.log.Info("usage saved", "batch_id", batchID, "provider", totals.Provider, "model", totals.Model,
		"images", totals.Images, "tokens", totals.TotalTokens, "cost_cents", totals.CostCents)
	return nil
}

// Summary aggregates the last 7 and 30 days plus a per-day breakdown of the
// last 30 days. Aggregation happens in Go so both dialects share the query.
func (r *usageRepo) Summary(ctx context.Context, now time.Time) (*UsageSummary, error) {
	monthAgo := now.AddDate(0, 0, -30)
	weekAgo := now.AddDate(0, 0, -7)

	recs, err := r.Records(ctx, monthAgo)
	if err != nil {
		return nil, err
	}

	s := &UsageSummary{}
	byDay := map[string]*DailyUsage{}
	var dayOrder []string
	for _, rec := range recs {
		s.MonthTokens += rec.TotalTokens
		s.MonthCost += rec.CostCents
		if rec.CreatedAt.After(weekAgo) {
			s.WeekTokens += rec.TotalTokens
			s.WeekCostCents += rec.CostCents
		}
		day := rec.CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailyUsage{Date: day}
			byDay[day] = d
			dayOrder = append(dayOrder, day)
		}
		d.Tokens += rec.TotalTokens
		d.CostCents += rec.CostCents
	}
	// Records come back newest first; the daily breakdown keeps that order.
	for _, day := range dayOrder {
		s.Daily = append(s.Daily, *byDay[day])
	}
	return s, nil
}

func (r *usageRepo) Records(ctx context.Context, since time.Time) ([]UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT batch_id, provider, model, images_processed, prompt_tokens, completion_tokens, total_tokens, cost_cents, created_at
		 FROM usage_history WHERE created_at >= ? ORDER BY created_at DESC`), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		if err := rows.Scan(&rec.BatchID, &rec.Provider, &rec.Model, &rec.Images,
			&rec.PromptTokens, &rec.CompletionTokens,
			&rec.TotalTokens, &rec.CostCents, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
