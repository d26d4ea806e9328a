package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/peaks"
)

// Bounded free-text column widths.
const (
	narrativeMaxLen      = 500
	recommendationMaxLen = 800
)

// recreate drops and recreates a destination table, then applies any extra
// statements (indexes).
func (p *Pipeline) recreate(ctx context.Context, table, ddl string, extra ...string) error {
	if err := p.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if err := p.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	for _, stmt := range extra {
		if err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare table %s: %w", table, err)
		}
	}
	return nil
}

func (p *Pipeline) createEnrichedTable(ctx context.Context) error {
	table := p.cfg.Tables.Enriched
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		customer_id VARCHAR(100),
		cluster INT,
		gmv DOUBLE PRECISION,
		tickets DOUBLE PRECISION,
		ticket_price DOUBLE PRECISION,
		has_return INT,
		purchase_hour INT,
		weekday INT,
		origin_city VARCHAR(200),
		origin_state VARCHAR(10),
		dest_city VARCHAR(200),
		dest_state VARCHAR(10),
		carrier VARCHAR(200),
		purchase_ts TIMESTAMP,
		processed_at TIMESTAMP,
		algorithm VARCHAR(50),
		cluster_count INT
	)`, table)
	return p.recreate(ctx, table, ddl,
		fmt.Sprintf("CREATE INDEX idx_%s_cluster ON %s(cluster)", table, table),
		fmt.Sprintf("CREATE INDEX idx_%s_customer ON %s(customer_id)", table, table),
	)
}

var profileColumns = []string{
	"cluster", "customers", "mean_gmv", "median_gmv", "mean_tickets",
	"mean_return_rate", "mean_engagement", "top_origins", "top_destinations",
	"top_carriers", "pct_high", "pct_medium", "pct_low", "narrative",
}

// writeProfiles replaces the profile table with the given rows.
func (p *Pipeline) writeProfiles(ctx context.Context, profiles []model.ClusterProfile) error {
	table := p.cfg.Tables.Profiles
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		cluster INT PRIMARY KEY,
		customers INT,
		mean_gmv DOUBLE PRECISION,
		median_gmv DOUBLE PRECISION,
		mean_tickets DOUBLE PRECISION,
		mean_return_rate DOUBLE PRECISION,
		mean_engagement DOUBLE PRECISION,
		top_origins TEXT,
		top_destinations TEXT,
		top_carriers TEXT,
		pct_high DOUBLE PRECISION,
		pct_medium DOUBLE PRECISION,
		pct_low DOUBLE PRECISION,
		narrative VARCHAR(%d)
	)`, table, narrativeMaxLen)
	if err := p.recreate(ctx, table, ddl); err != nil {
		return err
	}

	rows := make([][]any, 0, len(profiles))
	for _, pr := range profiles {
		origins, err := json.Marshal(pr.TopOrigins)
		if err != nil {
			return fmt.Errorf("failed to encode top origins: %w", err)
		}
		dests, err := json.Marshal(pr.TopDestinations)
		if err != nil {
			return fmt.Errorf("failed to encode top destinations: %w", err)
		}
		carriers, err := json.Marshal(pr.TopCarriers)
		if err != nil {
			return fmt.Errorf("failed to encode top carriers: %w", err)
		}
		rows = append(rows, []any{
			pr.Cluster, pr.Customers, pr.MeanGMV, pr.MedianGMV,
			pr.MeanTickets, pr.MeanReturnRate, pr.MeanEngagement,
			string(origins), string(dests), string(carriers),
			pr.PctHigh, pr.PctMedium, pr.PctLow,
			truncate(pr.Narrative, narrativeMaxLen),
		})
	}
	return p.db.InsertRows(ctx, table, profileColumns, rows)
}

var peakColumns = []string{
	"cluster", "hour", "purchases", "tickets", "gmv", "heavy_purchases",
	"heavy_ratio", "score", "hour_rank", "processed_at",
}

var recommendationColumns = []string{
	"cluster", "hour", "origin_city", "dest_city", "carrier", "peak_tickets",
	"heavy_ratio", "carrier_share", "opportunity_score", "recommendation",
	"processed_at",
}

// writePeaks replaces the peak-hours and recommendations tables, stamping
// every row of both with one shared processing timestamp.
func (p *Pipeline) writePeaks(ctx context.Context, result *peaks.Result) error {
	peaksTable := p.cfg.Tables.Peaks
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		cluster INT,
		hour INT,
		purchases BIGINT,
		tickets DOUBLE PRECISION,
		gmv DOUBLE PRECISION,
		heavy_purchases BIGINT,
		heavy_ratio DOUBLE PRECISION,
		score DOUBLE PRECISION,
		hour_rank INT,
		processed_at TIMESTAMP
	)`, peaksTable)
	if err := p.recreate(ctx, peaksTable, ddl); err != nil {
		return err
	}

	recosTable := p.cfg.Tables.Recommendations
	ddl = fmt.Sprintf(`CREATE TABLE %s (
		cluster INT,
		hour INT,
		origin_city VARCHAR(200),
		dest_city VARCHAR(200),
		carrier VARCHAR(200),
		peak_tickets DOUBLE PRECISION,
		heavy_ratio DOUBLE PRECISION,
		carrier_share DOUBLE PRECISION,
		opportunity_score DOUBLE PRECISION,
		recommendation VARCHAR(%d),
		processed_at TIMESTAMP
	)`, recosTable, recommendationMaxLen)
	if err := p.recreate(ctx, recosTable, ddl); err != nil {
		return err
	}

	now := time.Now().UTC()

	peakRows := make([][]any, 0, len(result.Peaks))
	for _, pk := range result.Peaks {
		peakRows = append(peakRows, []any{
			pk.Cluster, pk.Hour, pk.Purchases, pk.Tickets, pk.GMV,
			pk.HeavyPurchases, pk.HeavyRatio, pk.Score, pk.Rank, now,
		})
	}
	if err := p.db.InsertRows(ctx, peaksTable, peakColumns, peakRows); err != nil {
		return err
	}

	recoRows := make([][]any, 0, len(result.Opportunities))
	for _, opp := range result.Opportunities {
		recoRows = append(recoRows, []any{
			opp.Cluster, opp.Hour, opp.OriginCity, opp.DestCity, opp.Carrier,
			opp.PeakTickets, opp.HeavyRatio, opp.CarrierShare, opp.Score,
			truncate(opp.Recommendation, recommendationMaxLen), now,
		})
	}
	return p.db.InsertRows(ctx, recosTable, recommendationColumns, recoRows)
}

// truncate bounds s to max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
