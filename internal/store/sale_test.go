package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
)

func TestRecordSaleBasic(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	para := medicineByName(t, s, "paracetamol")

	sale, err := s.RecordSale(ctx, []domain.CartItem{
		{MedicineID: para.ID, Name: para.Name, Qty: 5, UnitPrice: 0.40, TaxRate: 15, StockAtSale: para.StockQty},
	}, "")
	require.NoError(t, err)

	assert.InDelta(t, 2.00, sale.Subtotal, 1e-9)
	assert.InDelta(t, 0.30, sale.Tax, 1e-9)
	assert.InDelta(t, 2.30, sale.Total, 1e-9)
	assert.InDelta(t, 1.50, sale.Profit, 1e-9)
	assert.Zero(t, sale.Discount)
	assert.Equal(t, domain.PaymentCash, sale.PaymentMethod)
	assert.Equal(t, "M-000001", sale.Memo)
	assert.Equal(t, clock.Now().UnixMilli(), sale.CreatedAt)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 200, sale.Items[0].StockAtSale)

	med, _, err := s.GetMedicineByID(ctx, para.ID)
	require.NoError(t, err)
	assert.Equal(t, 195, med.StockQty)
}

func TestRecordSaleOversell(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	para := medicineByName(t, s, "paracetamol")

	_, err := s.RecordSale(ctx, []domain.CartItem{{MedicineID: para.ID, Qty: 5, UnitPrice: 0.40, TaxRate: 15}}, "cash")
	require.NoError(t, err)

	_, err = s.RecordSale(ctx, []domain.CartItem{{MedicineID: para.ID, Qty: 500, UnitPrice: 0.40}}, "cash")
	require.ErrorIs(t, err, ErrInsufficientStock)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, para.ID, txErr.MedicineID)
	assert.Equal(t, 500, txErr.Requested)
	assert.Equal(t, 195, txErr.Available)

	med, _, err := s.GetMedicineByID(ctx, para.ID)
	require.NoError(t, err)
	assert.Equal(t, 195, med.StockQty)

	sales, err := s.GetSales(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestRecordSaleAggregatesRepeatedLines(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	syrup := medicineByName(t, s, "cough syrup")
	vitc := medicineByName(t, s, "vitamin c")

	_, err := s.RecordSale(ctx, []domain.CartItem{
		{MedicineID: vitc.ID, Qty: 10, UnitPrice: 0.80},
		{MedicineID: syrup.ID, Qty: 50, UnitPrice: 2.00},
		{MedicineID: syrup.ID, Qty: 40, UnitPrice: 2.00},
	}, "cash")
	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, syrup.ID, txErr.MedicineID)
	assert.Equal(t, 90, txErr.Requested)
	assert.Equal(t, 80, txErr.Available)

	after, _, err := s.GetMedicineByID(ctx, vitc.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, after.StockQty, "earlier lines must not be applied")
}

func TestRecordSaleUnknownMedicine(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	para := medicineByName(t, s, "paracetamol")

	_, err := s.RecordSale(ctx, []domain.CartItem{
		{MedicineID: para.ID, Qty: 1, UnitPrice: 0.40},
		{MedicineID: "med_gone", Name: "Discontinued", Qty: 1, UnitPrice: 1},
	}, "cash")
	require.ErrorIs(t, err, ErrMedicineNotFound)
	assert.Contains(t, err.Error(), "Discontinued")

	med, _, err := s.GetMedicineByID(ctx, para.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, med.StockQty)
}

func TestRecordSaleRejectsMalformedCarts(t *testing.T) {
	ctx := context.Background()
	s, blobs, _ := newTestStore(t)
	para := medicineByName(t, s, "paracetamol")
	savesBefore := blobs.saves

	cases := map[string][]domain.CartItem{
		"empty cart":        nil,
		"zero qty":          {{MedicineID: para.ID, Qty: 0, UnitPrice: 0.4}},
		"negative price":    {{MedicineID: para.ID, Qty: 1, UnitPrice: -0.4}},
		"tax above 100":     {{MedicineID: para.ID, Qty: 1, UnitPrice: 0.4, TaxRate: 101}},
		"negative discount": {{MedicineID: para.ID, Qty: 1, UnitPrice: 0.4, Discount: -5}},
		"blank medicine":    {{MedicineID: " ", Qty: 1, UnitPrice: 0.4}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.RecordSale(ctx, items, "cash")
			require.ErrorIs(t, err, ErrInvalidTransaction)
		})
	}
	assert.Equal(t, savesBefore, blobs.saves)
}

func TestRecordSaleDiscountsAndPaymentMethod(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	para := medicineByName(t, s, "paracetamol")
	syrup := medicineByName(t, s, "cough syrup")

	first, err := s.RecordSale(ctx, []domain.CartItem{{MedicineID: para.ID, Qty: 1, UnitPrice: 0.40}}, "cash")
	require.NoError(t, err)

	sale, err := s.RecordSale(ctx, []domain.CartItem{
		{MedicineID: syrup.ID, Qty: 2, UnitPrice: 2.00, TaxRate: 12, Discount: 10},
		{MedicineID: para.ID, Qty: 10, UnitPrice: 0.40, TaxRate: 5},
	}, "  UPI ")
	require.NoError(t, err)

	// syrup: 4.00 - 0.40 discount, tax 12% of 3.60; paracetamol: 4.00, tax 0.20
	assert.InDelta(t, 8.00, sale.Subtotal, 1e-9)
	assert.InDelta(t, 0.40, sale.Discount, 1e-9)
	assert.InDelta(t, 0.432+0.20, sale.Tax, 1e-9)
	assert.InDelta(t, sale.Subtotal-sale.Discount+sale.Tax, sale.Total, 1e-9)
	assert.InDelta(t, (2.00-1.20)*2+(0.40-0.10)*10, sale.Profit, 1e-9)
	assert.Equal(t, domain.PaymentUPI, sale.PaymentMethod)
	assert.Equal(t, "M-000001", first.Memo)
	assert.Equal(t, "M-000002", sale.Memo)
	assert.Equal(t, "Cough Syrup 100ml", sale.Items[0].Name, "blank names are filled from the catalog")

	sales, err := s.GetSales(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, sale.ID, sales[0].ID, "newest sale first")
}

func TestRecordSaleCanEmptyStock(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	antacid := medicineByName(t, s, "antacid")

	_, err := s.RecordSale(ctx, []domain.CartItem{{MedicineID: antacid.ID, Qty: 90, UnitPrice: 0.40}}, "card")
	require.NoError(t, err)

	_, err = s.RecordSale(ctx, []domain.CartItem{{MedicineID: antacid.ID, Qty: 1, UnitPrice: 0.40}}, "card")
	require.ErrorIs(t, err, ErrInsufficientStock)

	med, _, err := s.GetMedicineByID(ctx, antacid.ID)
	require.NoError(t, err)
	assert.Zero(t, med.StockQty)
}
