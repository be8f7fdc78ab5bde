package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

// RecordSale checks the cart against the live catalog, decrements stock and
// prepends the sale to the ledger. Nothing changes unless every line can be
// fulfilled and the document is saved.
func (s *Store) RecordSale(ctx context.Context, items []domain.CartItem, paymentMethod string) (domain.Sale, error) {
	if err := checkCart(items); err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err := s.mutate(ctx, func(next *state) (bool, error) {
		if err := next.checkStock(items); err != nil {
			return false, err
		}

		sale = domain.Sale{
			ID:            xid.New("sale"),
			Memo:          formatMemo(next.nextMemo),
			CreatedAt:     s.now().UnixMilli(),
			Items:         make([]domain.CartItem, 0, len(items)),
			PaymentMethod: normalizePayment(paymentMethod),
		}
		for _, item := range items {
			med := &next.medicines[next.index[item.MedicineID]]
			line := fillLine(item, *med)

			lineSubtotal := line.UnitPrice * float64(line.Qty)
			lineDiscount := lineSubtotal * line.Discount / 100
			lineTax := (lineSubtotal - lineDiscount) * line.TaxRate / 100

			sale.Subtotal += lineSubtotal
			sale.Discount += lineDiscount
			sale.Tax += lineTax
			sale.Profit += (line.UnitPrice - med.WholesaleCost) * float64(line.Qty)
			med.StockQty -= line.Qty
			sale.Items = append(sale.Items, line)
		}
		sale.Total = sale.Subtotal - sale.Discount + sale.Tax

		next.nextMemo++
		next.sales = append([]domain.Sale{sale}, next.sales...)
		return true, nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info().
		Str("sale_id", sale.ID).
		Str("memo", sale.Memo).
		Int("lines", len(sale.Items)).
		Float64("total", sale.Total).
		Str("payment_method", sale.PaymentMethod).
		Msg("sale recorded")
	return cloneSale(sale), nil
}

func checkCart(items []domain.CartItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidTransaction)
	}
	for i, item := range items {
		switch {
		case strings.TrimSpace(item.MedicineID) == "":
			return fmt.Errorf("%w: line %d has no medicine id", ErrInvalidTransaction, i+1)
		case item.Qty <= 0:
			return fmt.Errorf("%w: line %d qty must be positive", ErrInvalidTransaction, i+1)
		case !finite(item.UnitPrice) || item.UnitPrice < 0:
			return fmt.Errorf("%w: line %d unit price must be non-negative", ErrInvalidTransaction, i+1)
		case !percent(item.TaxRate):
			return fmt.Errorf("%w: line %d tax rate must be within 0-100", ErrInvalidTransaction, i+1)
		case !percent(item.Discount):
			return fmt.Errorf("%w: line %d discount must be within 0-100", ErrInvalidTransaction, i+1)
		}
	}
	return nil
}

// checkStock compares the summed quantity per medicine with current stock,
// reporting the first failing line in cart order.
func (st *state) checkStock(items []domain.CartItem) error {
	requested := make(map[string]int, len(items))
	for _, item := range items {
		pos, ok := st.index[item.MedicineID]
		if !ok {
			return &TransactionError{
				Reason:     ErrMedicineNotFound,
				MedicineID: item.MedicineID,
				Name:       item.Name,
				Requested:  item.Qty,
			}
		}
		requested[item.MedicineID] += item.Qty
		med := st.medicines[pos]
		if requested[item.MedicineID] > med.StockQty {
			return &TransactionError{
				Reason:     ErrInsufficientStock,
				MedicineID: med.ID,
				Name:       med.Name,
				Requested:  requested[item.MedicineID],
				Available:  med.StockQty,
			}
		}
	}
	return nil
}

// fillLine completes the denormalized fields a cart may have left blank.
func fillLine(item domain.CartItem, med domain.Medicine) domain.CartItem {
	if strings.TrimSpace(item.Name) == "" {
		item.Name = med.Name
	}
	if item.Pack == "" {
		item.Pack = med.Pack
	}
	if item.Batch == "" {
		item.Batch = med.Batch
	}
	if item.Expiry == "" {
		item.Expiry = med.Expiry
	}
	if item.HSN == "" {
		item.HSN = med.HSN
	}
	return item
}

func normalizePayment(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return domain.PaymentCash
	}
	return method
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func percent(v float64) bool {
	return finite(v) && v >= 0 && v <= 100
}
