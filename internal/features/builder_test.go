package features

import (
	"testing"
	"time"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(customer string, gmv, tickets float64, ts time.Time, returnOrigin string) model.Transaction {
	return model.Transaction{
		CustomerID:   customer,
		GMV:          gmv,
		Tickets:      tickets,
		PurchaseTime: ts,
		ReturnOrigin: returnOrigin,
	}
}

func TestBuilder_Features(t *testing.T) {
	// Monday 10h and Wednesday 14h
	mon := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	wed := time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)

	b := NewBuilder()
	b.Add([]model.Transaction{
		tx("c1", 100, 2, mon, ""),
		tx("c1", 50, 1, wed, "city-x"),
		tx("c2", 30, 1, wed, "0"),
	})

	feats, err := b.Features()
	require.NoError(t, err)
	require.Len(t, feats, 2)

	c1 := feats[0]
	assert.Equal(t, "c1", c1.CustomerID)
	assert.InDelta(t, 75.0, c1.MeanGMV, 1e-12)
	assert.InDelta(t, 3.0, c1.TotalTickets, 1e-12)
	assert.InDelta(t, 25.0, c1.AvgTicketPrice, 1e-12)
	assert.Equal(t, 1.0, c1.HasReturn)
	assert.InDelta(t, 12.0, c1.MeanHour, 1e-12)
	// Monday (0) and Wednesday (2) tie on count, Monday came first.
	assert.Equal(t, 0.0, c1.ModalWeekday)

	c2 := feats[1]
	assert.Equal(t, "c2", c2.CustomerID)
	assert.Equal(t, 0.0, c2.HasReturn)
	assert.Equal(t, 2.0, c2.ModalWeekday)
}

func TestBuilder_ZeroTicketsPriceGuard(t *testing.T) {
	b := NewBuilder()
	b.Add([]model.Transaction{
		tx("c1", 100, 0, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), ""),
	})

	feats, err := b.Features()
	require.NoError(t, err)
	require.Len(t, feats, 1)

	assert.Equal(t, 0.0, feats[0].AvgTicketPrice)
	assert.False(t, feats[0].AvgTicketPrice != feats[0].AvgTicketPrice, "price must not be NaN")
}

func TestBuilder_Incremental(t *testing.T) {
	ts := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	all := NewBuilder()
	all.Add([]model.Transaction{
		tx("a", 10, 1, ts, ""),
		tx("b", 20, 2, ts, ""),
		tx("a", 30, 3, ts, ""),
	})

	batched := NewBuilder()
	batched.Add([]model.Transaction{tx("a", 10, 1, ts, "")})
	batched.Add([]model.Transaction{tx("b", 20, 2, ts, "")})
	batched.Add([]model.Transaction{tx("a", 30, 3, ts, "")})

	fAll, err := all.Features()
	require.NoError(t, err)
	fBatched, err := batched.Features()
	require.NoError(t, err)

	assert.Equal(t, fAll, fBatched)
	assert.Equal(t, 2, batched.Customers())
}

func TestBuilder_Empty(t *testing.T) {
	_, err := NewBuilder().Features()
	assert.Error(t, err)
}

func TestTransaction_Derived(t *testing.T) {
	tests := []struct {
		name         string
		returnOrigin string
		want         int
	}{
		{name: "empty is one-way", returnOrigin: "", want: 0},
		{name: "zero is one-way", returnOrigin: "0", want: 0},
		{name: "padded zero is one-way", returnOrigin: " 0 ", want: 0},
		{name: "city means round trip", returnOrigin: "porto alegre", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trx := model.Transaction{ReturnOrigin: tt.returnOrigin}
			assert.Equal(t, tt.want, trx.HasReturn())
		})
	}

	// Sunday maps to 6 under the Monday-first convention.
	sun := model.Transaction{PurchaseTime: time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)}
	assert.Equal(t, 6, sun.PurchaseWeekday())
	assert.Equal(t, 23, sun.PurchaseHour())
}
