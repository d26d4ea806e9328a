// Package features builds per-customer feature vectors from raw transaction
// rows. The builder keeps mergeable partial aggregates so it can consume the
// same bounded batches the rest of the pipeline streams.
package features

import (
	"fmt"

	"github.com/rotalabs/buspulse/internal/model"
)

// accumulator holds the partial aggregates for one customer.
type accumulator struct {
	gmvSum       float64
	rows         int
	tickets      float64
	hasReturn    int
	hourSum      float64
	weekdayCount [7]int
	// weekdayFirst records the global sequence at which each weekday was
	// first observed, for the mode's first-encountered tie break.
	weekdayFirst [7]int
}

// Builder aggregates transactions into one feature vector per customer.
// The zero value is not usable; use NewBuilder.
type Builder struct {
	accs  map[string]*accumulator
	order []string
	seq   int
}

// NewBuilder returns an empty feature builder.
func NewBuilder() *Builder {
	return &Builder{accs: make(map[string]*accumulator)}
}

// Add folds a batch of transactions into the running aggregates. Safe to call
// any number of times before Features.
func (b *Builder) Add(txs []model.Transaction) {
	for _, tx := range txs {
		acc, ok := b.accs[tx.CustomerID]
		if !ok {
			acc = &accumulator{}
			for i := range acc.weekdayFirst {
				acc.weekdayFirst[i] = -1
			}
			b.accs[tx.CustomerID] = acc
			b.order = append(b.order, tx.CustomerID)
		}

		b.seq++
		acc.gmvSum += tx.GMV
		acc.rows++
		acc.tickets += tx.Tickets
		if r := tx.HasReturn(); r > acc.hasReturn {
			acc.hasReturn = r
		}
		acc.hourSum += float64(tx.PurchaseHour())

		wd := tx.PurchaseWeekday()
		if acc.weekdayFirst[wd] < 0 {
			acc.weekdayFirst[wd] = b.seq
		}
		acc.weekdayCount[wd]++
	}
}

// Customers returns the number of distinct customers seen so far.
func (b *Builder) Customers() int {
	return len(b.accs)
}

// Features finalizes the aggregates into one vector per customer, in the
// order customers were first seen. Returns an error when no transactions were
// added, since every downstream stage requires at least one row.
func (b *Builder) Features() ([]model.CustomerFeatures, error) {
	if len(b.order) == 0 {
		return nil, fmt.Errorf("no transactions to build features from")
	}

	out := make([]model.CustomerFeatures, 0, len(b.order))
	for _, id := range b.order {
		acc := b.accs[id]

		f := model.CustomerFeatures{
			CustomerID:   id,
			MeanGMV:      acc.gmvSum / float64(acc.rows),
			TotalTickets: acc.tickets,
			HasReturn:    float64(acc.hasReturn),
			MeanHour:     acc.hourSum / float64(acc.rows),
			ModalWeekday: float64(modalWeekday(acc)),
		}
		// Zero total tickets means an average price of 0, never NaN.
		if acc.tickets > 0 {
			f.AvgTicketPrice = f.MeanGMV / acc.tickets
		}
		out = append(out, f)
	}
	return out, nil
}

// modalWeekday picks the most frequent weekday; ties go to the weekday first
// encountered in the stream.
func modalWeekday(acc *accumulator) int {
	best := -1
	for wd := 0; wd < 7; wd++ {
		if acc.weekdayCount[wd] == 0 {
			continue
		}
		if best < 0 ||
			acc.weekdayCount[wd] > acc.weekdayCount[best] ||
			(acc.weekdayCount[wd] == acc.weekdayCount[best] && acc.weekdayFirst[wd] < acc.weekdayFirst[best]) {
			best = wd
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
