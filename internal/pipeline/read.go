package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotalabs/buspulse/internal/model"
)

// sourceColumns is the column list read from the source table, in scan order.
var sourceColumns = []string{
	"customer_id", "gmv", "tickets", "purchase_ts", "return_origin",
	"origin_city", "origin_state", "dest_city", "dest_state", "carrier",
}

// chunkOrderColumns is the sort key for the chunked source walk: customer and
// purchase time first, then every remaining column as a disambiguator. The
// source has no key column, so a total order needs the full list; otherwise
// duplicate (customer, timestamp) rows could repeat or drop across chunk
// boundaries.
var chunkOrderColumns = []string{
	"customer_id", "purchase_ts", "gmv", "tickets", "return_origin",
	"origin_city", "origin_state", "dest_city", "dest_state", "carrier",
}

// forEachTransactionChunk streams the source table in bounded chunks through
// fn, reading in a stable total order so the LIMIT/OFFSET walk sees every row
// exactly once.
func (p *Pipeline) forEachTransactionChunk(ctx context.Context, fn func([]model.Transaction) error) error {
	base := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY %s",
		strings.Join(sourceColumns, ", "), p.cfg.Tables.Source,
		strings.Join(chunkOrderColumns, ", "),
	)

	for offset := 0; ; offset += p.cfg.ChunkSize {
		query := fmt.Sprintf("%s LIMIT %d OFFSET %d", base, p.cfg.ChunkSize, offset)
		txs, err := p.scanTransactions(ctx, query)
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			return nil
		}
		if err := fn(txs); err != nil {
			return err
		}
		if len(txs) < p.cfg.ChunkSize {
			return nil
		}
	}
}

func (p *Pipeline) scanTransactions(ctx context.Context, query string) ([]model.Transaction, error) {
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var customerID, returnOrigin, originCity, originState, destCity, destState, carrier any
		var gmv, tickets, purchaseTS any
		err := rows.Scan(&customerID, &gmv, &tickets, &purchaseTS, &returnOrigin,
			&originCity, &originState, &destCity, &destState, &carrier)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, model.Transaction{
			CustomerID:   asString(customerID),
			GMV:          asFloat(gmv),
			Tickets:      asFloat(tickets),
			PurchaseTime: asTime(purchaseTS),
			ReturnOrigin: asString(returnOrigin),
			OriginCity:   asString(originCity),
			OriginState:  asString(originState),
			DestCity:     asString(destCity),
			DestState:    asString(destState),
			Carrier:      asString(carrier),
		})
	}
	return txs, rows.Err()
}

// enrichedColumns is the column list read back from the enriched table.
var enrichedColumns = []string{
	"customer_id", "cluster", "gmv", "tickets", "ticket_price", "has_return",
	"purchase_hour", "weekday", "origin_city", "origin_state", "dest_city",
	"dest_state", "carrier", "purchase_ts",
}

// readEnriched materializes the whole enriched set in memory. The profiler
// and the peak engine aggregate over the full set; this caps practical scale
// to process memory, as documented.
func (p *Pipeline) readEnriched(ctx context.Context) ([]model.EnrichedTransaction, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(enrichedColumns, ", "), p.cfg.Tables.Enriched)
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read enriched table %s: %w", p.cfg.Tables.Enriched, err)
	}
	defer rows.Close()

	var txs []model.EnrichedTransaction
	for rows.Next() {
		var customerID, cluster, originCity, originState, destCity, destState, carrier any
		var gmv, tickets, ticketPrice, hasReturn, hour, weekday, purchaseTS any
		err := rows.Scan(&customerID, &cluster, &gmv, &tickets, &ticketPrice, &hasReturn,
			&hour, &weekday, &originCity, &originState, &destCity, &destState,
			&carrier, &purchaseTS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enriched transaction: %w", err)
		}
		txs = append(txs, model.EnrichedTransaction{
			CustomerID:   asString(customerID),
			Cluster:      asNullableInt(cluster),
			GMV:          asFloat(gmv),
			Tickets:      asFloat(tickets),
			TicketPrice:  asFloat(ticketPrice),
			HasReturn:    int(asFloat(hasReturn)),
			PurchaseHour: int(asFloat(hour)),
			Weekday:      int(asFloat(weekday)),
			OriginCity:   asString(originCity),
			OriginState:  asString(originState),
			DestCity:     asString(destCity),
			DestState:    asString(destState),
			Carrier:      asString(carrier),
			PurchaseTime: asTime(purchaseTS),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(txs) == 0 {
		return nil, fmt.Errorf("enriched table %s is empty: run propagation first", p.cfg.Tables.Enriched)
	}
	return txs, nil
}

// CSV-loaded tables may come back as all-text columns, so scans go through
// loose coercion. Non-numeric values coerce to 0 rather than failing.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	case fmt.Stringer:
		// Drivers hand back DECIMAL columns as their own value types.
		return parseFloat(x.String())
	default:
		return 0
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func asNullableInt(v any) *int {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		n := int(x)
		return &n
	case int32:
		n := int(x)
		return &n
	case int:
		n := x
		return &n
	case float64:
		n := int(x)
		return &n
	case []byte:
		return parseNullableInt(string(x))
	case string:
		return parseNullableInt(x)
	default:
		return nil
	}
}

func parseNullableInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case sql.NullTime:
		return x.Time
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
