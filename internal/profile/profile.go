// Package profile aggregates enriched transactions into per-cluster
// engagement profiles with a generated narrative sentence.
package profile

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/stats"
)

// Engagement tier boundaries on the 0-100 score.
const (
	HighTierScore   = 90
	MediumTierScore = 40
)

// DefaultTopValues is how many entries each frequency table keeps.
const DefaultTopValues = 5

// Config holds profiler parameters.
type Config struct {
	// TopValues caps the origin/destination/carrier frequency tables.
	TopValues int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.TopValues == 0 {
		c.TopValues = DefaultTopValues
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// customerTotals is the per-(customer, cluster) aggregate the engagement
// score is computed on.
type customerTotals struct {
	cluster    int
	gmv        float64
	tickets    float64
	returnSum  float64
	rows       int
	engagement float64
	tier       string
}

// Build computes one ClusterProfile per cluster present in the enriched set.
// Rows without a cluster assignment do not belong to any group and are left
// out. Profiles come back ordered by cluster label.
func Build(txs []model.EnrichedTransaction, cfg Config) ([]model.ClusterProfile, error) {
	cfg.applyDefaults()

	if len(txs) == 0 {
		return nil, fmt.Errorf("no enriched transactions to profile")
	}

	customers, order := foldCustomers(txs)
	if len(order) == 0 {
		return nil, fmt.Errorf("no cluster assignments found in enriched transactions")
	}

	scoreCustomers(customers, order)

	clusters := map[int]*clusterAccumulator{}
	var labels []int
	for _, key := range order {
		c := customers[key]
		acc, ok := clusters[c.cluster]
		if !ok {
			acc = &clusterAccumulator{}
			clusters[c.cluster] = acc
			labels = append(labels, c.cluster)
		}
		acc.addCustomer(c)
	}
	for _, tx := range txs {
		if tx.Cluster == nil {
			continue
		}
		clusters[*tx.Cluster].addTransaction(tx)
	}
	sort.Ints(labels)

	profiles := make([]model.ClusterProfile, 0, len(labels))
	meanGMVs := make([]float64, 0, len(labels))
	for _, label := range labels {
		p := clusters[label].profile(label, cfg.TopValues)
		profiles = append(profiles, p)
		meanGMVs = append(meanGMVs, p.MeanGMV)
	}

	// Spend tiers compare each cluster against the population of cluster
	// means, so the narrative needs every profile built first.
	q25 := stats.Quantile(0.25, meanGMVs)
	q75 := stats.Quantile(0.75, meanGMVs)
	for i := range profiles {
		profiles[i].Narrative = narrative(profiles[i], q25, q75)
	}

	cfg.Logger.Info("engagement profiles built",
		slog.Int("clusters", len(profiles)),
		slog.Int("customers", len(order)))

	return profiles, nil
}

type customerKey struct {
	id      string
	cluster int
}

// foldCustomers groups transactions by (customer, cluster) and returns the
// totals keyed plus first-seen key order.
func foldCustomers(txs []model.EnrichedTransaction) (map[customerKey]*customerTotals, []customerKey) {
	customers := map[customerKey]*customerTotals{}
	var order []customerKey
	for _, tx := range txs {
		if tx.Cluster == nil {
			continue
		}
		key := customerKey{id: tx.CustomerID, cluster: *tx.Cluster}
		c, ok := customers[key]
		if !ok {
			c = &customerTotals{cluster: *tx.Cluster}
			customers[key] = c
			order = append(order, key)
		}
		c.gmv += tx.GMV
		c.tickets += tx.Tickets
		c.returnSum += float64(tx.HasReturn)
		c.rows++
	}
	return customers, order
}

// scoreCustomers assigns each customer the percentile rank of its ticket
// total across the whole population, scaled to 0-100 and rounded, then the
// matching tier.
func scoreCustomers(customers map[customerKey]*customerTotals, order []customerKey) {
	totals := make([]float64, len(order))
	for i, key := range order {
		totals[i] = customers[key].tickets
	}
	ranks := stats.PercentileRanks(totals)
	for i, key := range order {
		c := customers[key]
		c.engagement = math.Round(ranks[i] * 100)
		switch {
		case c.engagement >= HighTierScore:
			c.tier = "High"
		case c.engagement >= MediumTierScore:
			c.tier = "Medium"
		default:
			c.tier = "Low"
		}
	}
}

// clusterAccumulator folds customer totals and raw transactions for one
// cluster.
type clusterAccumulator struct {
	gmvs        []float64
	tickets     []float64
	returnRates []float64
	engagement  []float64
	high        int
	medium      int
	low         int

	origins      *frequencyCounter
	destinations *frequencyCounter
	carriers     *frequencyCounter
}

func (a *clusterAccumulator) addCustomer(c *customerTotals) {
	a.gmvs = append(a.gmvs, c.gmv)
	a.tickets = append(a.tickets, c.tickets)
	a.returnRates = append(a.returnRates, c.returnSum/float64(c.rows))
	a.engagement = append(a.engagement, c.engagement)
	switch c.tier {
	case "High":
		a.high++
	case "Medium":
		a.medium++
	default:
		a.low++
	}
}

func (a *clusterAccumulator) addTransaction(tx model.EnrichedTransaction) {
	if a.origins == nil {
		a.origins = newFrequencyCounter()
		a.destinations = newFrequencyCounter()
		a.carriers = newFrequencyCounter()
	}
	a.origins.add(tx.OriginCity)
	a.destinations.add(tx.DestCity)
	a.carriers.add(tx.Carrier)
}

func (a *clusterAccumulator) profile(label, topValues int) model.ClusterProfile {
	n := float64(len(a.gmvs))
	return model.ClusterProfile{
		Cluster:         label,
		Customers:       len(a.gmvs),
		MeanGMV:         stats.Mean(a.gmvs),
		MedianGMV:       stats.Median(a.gmvs),
		MeanTickets:     stats.Mean(a.tickets),
		MeanReturnRate:  stats.Mean(a.returnRates),
		MeanEngagement:  stats.Mean(a.engagement),
		TopOrigins:      a.origins.top(topValues),
		TopDestinations: a.destinations.top(topValues),
		TopCarriers:     a.carriers.top(topValues),
		PctHigh:         float64(a.high) / n,
		PctMedium:       float64(a.medium) / n,
		PctLow:          float64(a.low) / n,
	}
}

// narrative builds the four-part profile sentence from independent rule-based
// classifications.
func narrative(p model.ClusterProfile, q25, q75 float64) string {
	var spend string
	switch {
	case p.MeanGMV > q75:
		spend = "high value"
	case p.MeanGMV < q25:
		spend = "low value"
	default:
		spend = "intermediate value"
	}

	var volume string
	switch {
	case p.MeanTickets >= 4:
		volume = "many tickets"
	case p.MeanTickets <= 1.5:
		volume = "few tickets"
	default:
		volume = "a moderate number of tickets"
	}

	trip := "one-way"
	if p.MeanReturnRate > 0.6 {
		trip = "round trip"
	}

	var tone string
	switch {
	case p.PctHigh > 0.3:
		tone = "with a strong heavy-user presence"
	case p.PctMedium > 0.5:
		tone = "with a median purchase profile"
	default:
		tone = "with mostly low-engagement customers"
	}

	return fmt.Sprintf("Customers of %s, buying %s, usually traveling %s, %s.",
		spend, volume, trip, tone)
}

// frequencyCounter counts string values preserving first-seen order for tie
// breaking.
type frequencyCounter struct {
	counts map[string]int
	order  []string
}

func newFrequencyCounter() *frequencyCounter {
	return &frequencyCounter{counts: map[string]int{}}
}

func (f *frequencyCounter) add(value string) {
	if _, ok := f.counts[value]; !ok {
		f.order = append(f.order, value)
	}
	f.counts[value]++
}

// top returns the n most frequent values, count descending, first-seen order
// among equal counts.
func (f *frequencyCounter) top(n int) model.FrequencyTable {
	if f == nil {
		return model.FrequencyTable{}
	}
	table := make(model.FrequencyTable, 0, len(f.order))
	for _, v := range f.order {
		table = append(table, model.FrequencyEntry{Value: v, Count: f.counts[v]})
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Count > table[j].Count
	})
	if len(table) > n {
		table = table[:n]
	}
	return table
}
