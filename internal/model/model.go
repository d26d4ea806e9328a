// Package model defines the domain types shared by the pipeline stages.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Transaction is a raw ticket purchase row from the source table.
// Source rows are immutable facts; stages read them and never write back.
type Transaction struct {
	CustomerID   string
	GMV          float64
	Tickets      float64
	PurchaseTime time.Time
	OriginCity   string
	OriginState  string
	DestCity     string
	DestState    string
	Carrier      string

	// ReturnOrigin is the optional return-leg origin. Empty or "0" means a
	// one-way purchase.
	ReturnOrigin string
}

// HasReturn reports the binary round-trip indicator for the transaction.
func (t Transaction) HasReturn() int {
	if v := strings.TrimSpace(t.ReturnOrigin); v == "" || v == "0" {
		return 0
	}
	return 1
}

// PurchaseHour returns the hour of day (0-23) the ticket was bought.
func (t Transaction) PurchaseHour() int {
	return t.PurchaseTime.Hour()
}

// PurchaseWeekday returns the weekday of purchase with Monday = 0 and
// Sunday = 6.
func (t Transaction) PurchaseWeekday() int {
	return (int(t.PurchaseTime.Weekday()) + 6) % 7
}

// CustomerFeatures is the per-customer feature vector fed to the segmentation
// engine. It is an ephemeral computation artifact and is never persisted.
type CustomerFeatures struct {
	CustomerID     string
	MeanGMV        float64
	TotalTickets   float64
	AvgTicketPrice float64
	HasReturn      float64
	MeanHour       float64
	ModalWeekday   float64
}

// NumFeatures is the dimensionality of the feature vector.
const NumFeatures = 6

// Vector returns the numeric features in their canonical order.
func (f CustomerFeatures) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{
		f.MeanGMV,
		f.TotalTickets,
		f.AvgTicketPrice,
		f.HasReturn,
		f.MeanHour,
		f.ModalWeekday,
	}
}

// EnrichedTransaction is a Transaction joined with its customer's cluster
// assignment plus derived fields. Cluster is nil when the customer had no
// assignment at propagation time; such rows are retained, never dropped.
type EnrichedTransaction struct {
	CustomerID   string
	Cluster      *int
	GMV          float64
	Tickets      float64
	TicketPrice  float64
	HasReturn    int
	PurchaseHour int
	Weekday      int
	OriginCity   string
	OriginState  string
	DestCity     string
	DestState    string
	Carrier      string
	PurchaseTime time.Time
	ProcessedAt  time.Time
	Algorithm    string
	ClusterCount int
}

// FrequencyEntry is one value with its occurrence count.
type FrequencyEntry struct {
	Value string
	Count int
}

// FrequencyTable is an ordered top-N frequency mapping. Order is count
// descending with first-seen order breaking ties, and is preserved when
// marshalled to JSON.
type FrequencyTable []FrequencyEntry

// MarshalJSON renders the table as a JSON object whose keys keep the table's
// order.
func (ft FrequencyTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range ft {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.Count)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a table from its JSON object form. Go maps do not
// preserve key order, so the original order is rebuilt by count descending
// with key order breaking ties.
func (ft *FrequencyTable) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortFrequencyKeys(keys, m)
	*ft = (*ft)[:0]
	for _, k := range keys {
		*ft = append(*ft, FrequencyEntry{Value: k, Count: m[k]})
	}
	return nil
}

func sortFrequencyKeys(keys []string, counts map[string]int) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if counts[a] > counts[b] || (counts[a] == counts[b] && a <= b) {
				break
			}
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// ClusterProfile is one row of the cluster-profile table.
type ClusterProfile struct {
	Cluster         int
	Customers       int
	MeanGMV         float64
	MedianGMV       float64
	MeanTickets     float64
	MeanReturnRate  float64
	MeanEngagement  float64
	TopOrigins      FrequencyTable
	TopDestinations FrequencyTable
	TopCarriers     FrequencyTable
	PctHigh         float64
	PctMedium       float64
	PctLow          float64
	Narrative       string
}

// PeakHour is one row of the peak-hours table: a (cluster, hour) aggregate
// with its demand score and within-cluster rank.
type PeakHour struct {
	Cluster        int
	Hour           int
	Purchases      int
	Tickets        float64
	GMV            float64
	HeavyPurchases int
	HeavyRatio     float64
	Score          float64
	Rank           int
}

// RouteShare is the market share of one carrier on one route.
type RouteShare struct {
	OriginCity   string
	DestCity     string
	Carrier      string
	Tickets      float64
	RouteTickets float64
	Share        float64
	Small        bool
}

// Opportunity is one row of the recommendations table: a small carrier on a
// top route during a peak hour for a cluster.
type Opportunity struct {
	Cluster        int
	Hour           int
	OriginCity     string
	DestCity       string
	Carrier        string
	PeakTickets    float64
	HeavyRatio     float64
	CarrierShare   float64
	Score          float64
	Recommendation string
}
