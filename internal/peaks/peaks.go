// Package peaks ranks purchase hours per cluster by heavy-user-weighted
// demand and recommends small carriers on the top routes of those peaks.
package peaks

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/stats"
)

// Defaults for the analysis thresholds.
const (
	DefaultHeavyPct   = 0.20
	DefaultSmallShare = 0.10
	DefaultTopHours   = 5
	DefaultTopRoutes  = 5
)

// Config holds analysis parameters.
type Config struct {
	// HeavyPct is the share of a cluster's customers, by ticket total,
	// counted as heavy users. 0.20 flags the top quintile.
	HeavyPct float64

	// SmallShare is the route market share at or below which a carrier
	// counts as small.
	SmallShare float64

	// TopHours is how many peak hours to keep per cluster.
	TopHours int

	// TopRoutes is how many routes to keep per peak cluster-hour.
	TopRoutes int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HeavyPct == 0 {
		c.HeavyPct = DefaultHeavyPct
	}
	if c.SmallShare == 0 {
		c.SmallShare = DefaultSmallShare
	}
	if c.TopHours == 0 {
		c.TopHours = DefaultTopHours
	}
	if c.TopRoutes == 0 {
		c.TopRoutes = DefaultTopRoutes
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Result carries the three outputs of one analysis pass. RouteShares is the
// intermediate market-share table; only Peaks and Opportunities are
// persisted.
type Result struct {
	Peaks         []model.PeakHour
	RouteShares   []model.RouteShare
	Opportunities []model.Opportunity
}

// Analyze runs the full peak-hour and small-carrier analysis over the
// enriched set. Rows without a cluster assignment are excluded from
// cluster-keyed aggregates but still count toward route market shares.
func Analyze(txs []model.EnrichedTransaction, cfg Config) (*Result, error) {
	cfg.applyDefaults()

	if len(txs) == 0 {
		return nil, fmt.Errorf("no enriched transactions to analyze")
	}

	heavy := flagHeavyCustomers(txs, cfg.HeavyPct)
	peaks := rankPeakHours(txs, heavy, cfg.TopHours)
	shares := computeRouteShares(txs, cfg.SmallShare)
	opps := recommend(txs, heavy, peaks, shares, cfg.TopRoutes)

	cfg.Logger.Info("peak analysis complete",
		slog.Int("peaks", len(peaks)),
		slog.Int("routes", len(shares)),
		slog.Int("opportunities", len(opps)))

	return &Result{Peaks: peaks, RouteShares: shares, Opportunities: opps}, nil
}

type clusterCustomer struct {
	cluster  int
	customer string
}

// flagHeavyCustomers marks each (cluster, customer) whose ticket-total
// percentile rank within the cluster reaches 1 - heavyPct.
func flagHeavyCustomers(txs []model.EnrichedTransaction, heavyPct float64) map[clusterCustomer]bool {
	totals := map[clusterCustomer]float64{}
	perCluster := map[int][]clusterCustomer{}
	for _, tx := range txs {
		if tx.Cluster == nil {
			continue
		}
		key := clusterCustomer{cluster: *tx.Cluster, customer: tx.CustomerID}
		if _, ok := totals[key]; !ok {
			perCluster[key.cluster] = append(perCluster[key.cluster], key)
		}
		totals[key] += tx.Tickets
	}

	cutoff := 1 - heavyPct
	heavy := make(map[clusterCustomer]bool, len(totals))
	for _, keys := range perCluster {
		values := make([]float64, len(keys))
		for i, key := range keys {
			values[i] = totals[key]
		}
		ranks := stats.PercentileRanks(values)
		for i, key := range keys {
			heavy[key] = ranks[i] >= cutoff
		}
	}
	return heavy
}

type clusterHour struct {
	cluster int
	hour    int
}

// rankPeakHours aggregates per (cluster, hour), scores each hour by
// tickets x (1 + 0.5 x heavy ratio), and keeps the topHours best per
// cluster. Output is ordered cluster ascending then hour ascending; ties in
// score rank in that same order.
func rankPeakHours(txs []model.EnrichedTransaction, heavy map[clusterCustomer]bool, topHours int) []model.PeakHour {
	aggs := map[clusterHour]*model.PeakHour{}
	for _, tx := range txs {
		if tx.Cluster == nil {
			continue
		}
		key := clusterHour{cluster: *tx.Cluster, hour: tx.PurchaseHour}
		agg, ok := aggs[key]
		if !ok {
			agg = &model.PeakHour{Cluster: key.cluster, Hour: key.hour}
			aggs[key] = agg
		}
		agg.Purchases++
		agg.Tickets += tx.Tickets
		agg.GMV += tx.GMV
		if heavy[clusterCustomer{cluster: key.cluster, customer: tx.CustomerID}] {
			agg.HeavyPurchases++
		}
	}

	rows := make([]model.PeakHour, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Purchases > 0 {
			agg.HeavyRatio = float64(agg.HeavyPurchases) / float64(agg.Purchases)
		}
		agg.Score = agg.Tickets * (1 + 0.5*agg.HeavyRatio)
		rows = append(rows, *agg)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Cluster != rows[j].Cluster {
			return rows[i].Cluster < rows[j].Cluster
		}
		return rows[i].Hour < rows[j].Hour
	})

	// Rank within each cluster by score descending; the stable sort keeps
	// the hour-ascending base order for equal scores.
	var out []model.PeakHour
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].Cluster == rows[start].Cluster {
			end++
		}
		group := make([]model.PeakHour, end-start)
		copy(group, rows[start:end])
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Score > group[j].Score
		})
		retained := map[int]int{}
		for rank, row := range group {
			if rank < topHours {
				retained[row.Hour] = rank + 1
			}
		}
		for _, row := range rows[start:end] {
			if rank, ok := retained[row.Hour]; ok {
				row.Rank = rank
				out = append(out, row)
			}
		}
		start = end
	}
	return out
}

type route struct {
	origin string
	dest   string
}

type routeCarrier struct {
	route
	carrier string
}

// computeRouteShares builds the carrier market-share table per route over
// every transaction, cluster-assigned or not.
func computeRouteShares(txs []model.EnrichedTransaction, smallShare float64) []model.RouteShare {
	byCarrier := map[routeCarrier]float64{}
	byRoute := map[route]float64{}
	for _, tx := range txs {
		rc := routeCarrier{
			route:   route{origin: tx.OriginCity, dest: tx.DestCity},
			carrier: tx.Carrier,
		}
		byCarrier[rc] += tx.Tickets
		byRoute[rc.route] += tx.Tickets
	}

	out := make([]model.RouteShare, 0, len(byCarrier))
	for rc, tickets := range byCarrier {
		rs := model.RouteShare{
			OriginCity:   rc.origin,
			DestCity:     rc.dest,
			Carrier:      rc.carrier,
			Tickets:      tickets,
			RouteTickets: byRoute[rc.route],
		}
		if rs.RouteTickets > 0 {
			rs.Share = rs.Tickets / rs.RouteTickets
		}
		rs.Small = rs.Share <= smallShare
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OriginCity != b.OriginCity {
			return a.OriginCity < b.OriginCity
		}
		if a.DestCity != b.DestCity {
			return a.DestCity < b.DestCity
		}
		return a.Carrier < b.Carrier
	})
	return out
}

type clusterHourRoute struct {
	clusterHour
	route
}

type routeDemand struct {
	key            clusterHourRoute
	tickets        float64
	purchases      int
	heavyPurchases int
	heavyRatio     float64
}

// recommend keeps the topRoutes busiest routes inside each peak cluster-hour,
// joins them against the market-share table and emits one opportunity per
// small carrier on each.
func recommend(txs []model.EnrichedTransaction, heavy map[clusterCustomer]bool, peakRows []model.PeakHour, shares []model.RouteShare, topRoutes int) []model.Opportunity {
	peakSet := map[clusterHour]bool{}
	for _, p := range peakRows {
		peakSet[clusterHour{cluster: p.Cluster, hour: p.Hour}] = true
	}

	demands := map[clusterHourRoute]*routeDemand{}
	for _, tx := range txs {
		if tx.Cluster == nil {
			continue
		}
		ch := clusterHour{cluster: *tx.Cluster, hour: tx.PurchaseHour}
		if !peakSet[ch] {
			continue
		}
		key := clusterHourRoute{
			clusterHour: ch,
			route:       route{origin: tx.OriginCity, dest: tx.DestCity},
		}
		d, ok := demands[key]
		if !ok {
			d = &routeDemand{key: key}
			demands[key] = d
		}
		d.tickets += tx.Tickets
		d.purchases++
		if heavy[clusterCustomer{cluster: ch.cluster, customer: tx.CustomerID}] {
			d.heavyPurchases++
		}
	}

	rows := make([]routeDemand, 0, len(demands))
	for _, d := range demands {
		if d.purchases > 0 {
			d.heavyRatio = float64(d.heavyPurchases) / float64(d.purchases)
		}
		rows = append(rows, *d)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].key, rows[j].key
		if a.cluster != b.cluster {
			return a.cluster < b.cluster
		}
		if a.hour != b.hour {
			return a.hour < b.hour
		}
		if a.origin != b.origin {
			return a.origin < b.origin
		}
		return a.dest < b.dest
	})
	rows = keepTopRoutes(rows, topRoutes)

	smallByRoute := map[route][]model.RouteShare{}
	for _, rs := range shares {
		if rs.Small {
			key := route{origin: rs.OriginCity, dest: rs.DestCity}
			smallByRoute[key] = append(smallByRoute[key], rs)
		}
	}

	var out []model.Opportunity
	for _, d := range rows {
		for _, rs := range smallByRoute[d.key.route] {
			score := d.tickets * (1 - rs.Share) * (0.5 + 0.5*d.heavyRatio)
			out = append(out, model.Opportunity{
				Cluster:      d.key.cluster,
				Hour:         d.key.hour,
				OriginCity:   d.key.origin,
				DestCity:     d.key.dest,
				Carrier:      rs.Carrier,
				PeakTickets:  d.tickets,
				HeavyRatio:   d.heavyRatio,
				CarrierShare: rs.Share,
				Score:        score,
				Recommendation: fmt.Sprintf(
					"Promote %s on route %s → %s at %02dh. Current share: %.1f%%. Peak demand in cluster: %d tickets; heavy users: %.0f%%.",
					rs.Carrier, d.key.origin, d.key.dest, d.key.hour,
					rs.Share*100, int(d.tickets), d.heavyRatio*100),
			})
		}
	}
	return out
}

// keepTopRoutes filters the demand rows, already ordered by cluster, hour,
// origin and destination, down to the topRoutes highest ticket demands per
// (cluster, hour). Equal demands keep the base route order.
func keepTopRoutes(rows []routeDemand, topRoutes int) []routeDemand {
	var out []routeDemand
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].key.clusterHour == rows[start].key.clusterHour {
			end++
		}
		group := make([]routeDemand, end-start)
		copy(group, rows[start:end])
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].tickets > group[j].tickets
		})
		retained := map[route]bool{}
		for i, d := range group {
			if i < topRoutes {
				retained[d.key.route] = true
			}
		}
		for _, d := range rows[start:end] {
			if retained[d.key.route] {
				out = append(out, d)
			}
		}
		start = end
	}
	return out
}
