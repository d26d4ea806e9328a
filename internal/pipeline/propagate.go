package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/segment"
)

var enrichedInsertColumns = []string{
	"customer_id", "cluster", "gmv", "tickets", "ticket_price", "has_return",
	"purchase_hour", "weekday", "origin_city", "origin_state", "dest_city",
	"dest_state", "carrier", "purchase_ts", "processed_at", "algorithm",
	"cluster_count",
}

// Propagate assigns every customer's cluster onto its transactions and
// rebuilds the enriched table. The table is recreated up front, so a run
// that fails partway leaves a partially populated set; the next run replaces
// it wholesale.
func (p *Pipeline) Propagate(ctx context.Context) (int64, error) {
	if p.fitted == nil {
		return 0, fmt.Errorf("model not trained: run the training stage before propagating clusters")
	}

	assignments := p.fitted.Predict(p.features)

	if err := p.createEnrichedTable(ctx); err != nil {
		return 0, err
	}

	processedAt := time.Now().UTC()
	var total int64
	err := p.forEachTransactionChunk(ctx, func(txs []model.Transaction) error {
		rows := make([][]any, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, p.enrichRow(tx, assignments, processedAt))
		}
		if err := p.db.InsertRows(ctx, p.cfg.Tables.Enriched, enrichedInsertColumns, rows); err != nil {
			return fmt.Errorf("failed to write enriched chunk: %w", err)
		}
		total += int64(len(rows))
		p.logger.Debug("enriched chunk written",
			slog.Int("rows", len(rows)),
			slog.Int64("total", total))
		return nil
	})
	if err != nil {
		return total, err
	}

	p.logger.Info("cluster propagation complete",
		slog.Int64("rows", total),
		slog.String("algorithm", segment.Algorithm),
		slog.Int("cluster_count", p.fitted.Clusters))
	return total, nil
}

// enrichRow derives the per-transaction fields and joins the cluster label.
// Customers without an assignment keep a NULL cluster. Ticket price divides
// GMV by ticket quantity with no zero guard; a positive quantity is a
// documented precondition of the source data.
func (p *Pipeline) enrichRow(tx model.Transaction, assignments map[string]int, processedAt time.Time) []any {
	var cluster any
	if c, ok := assignments[tx.CustomerID]; ok {
		cluster = c
	}

	return []any{
		tx.CustomerID,
		cluster,
		tx.GMV,
		tx.Tickets,
		tx.GMV / tx.Tickets,
		tx.HasReturn(),
		tx.PurchaseHour(),
		tx.PurchaseWeekday(),
		tx.OriginCity,
		tx.OriginState,
		tx.DestCity,
		tx.DestState,
		tx.Carrier,
		tx.PurchaseTime,
		processedAt,
		segment.Algorithm,
		p.fitted.Clusters,
	}
}
