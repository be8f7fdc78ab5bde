// Package receipt renders sales as printable invoices and CSV exports.
package receipt

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/money"
)

var csvHeader = []string{"Date", "Memo", "Items", "Subtotal", "Discount", "GST", "Total", "Payment Method", "Profit"}

type Renderer struct {
	shop       string
	money      *money.Formatter
	loc        *time.Location
	dateLayout string
}

func NewRenderer(shop string, formatter *money.Formatter, loc *time.Location, dateLayout string) *Renderer {
	if strings.TrimSpace(shop) == "" {
		shop = "Pharmacy"
	}
	if loc == nil {
		loc = time.Local
	}
	if dateLayout == "" {
		dateLayout = "1/2/2006"
	}
	return &Renderer{shop: shop, money: formatter, loc: loc, dateLayout: dateLayout}
}

// SalesCSV writes one row per sale in the order given.
func (r *Renderer) SalesCSV(w io.Writer, sales []domain.Sale) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("receipt: write csv header: %w", err)
	}
	for _, sale := range sales {
		row := []string{
			r.timestamp(sale.CreatedAt).Format(r.dateLayout),
			safeCell(sale.Memo),
			safeCell(itemSummary(sale.Items)),
			r.money.Format(sale.Subtotal),
			r.money.Format(sale.Discount),
			r.money.Format(sale.Tax),
			r.money.Format(sale.Total),
			safeCell(sale.PaymentMethod),
			r.money.Format(sale.Profit),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("receipt: write csv row %s: %w", sale.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// InvoicePDF renders a single-page A5 invoice for sale.
func (r *Renderer) InvoicePDF(sale domain.Sale) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(8, 8, 8)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 16

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, tr(r.shop), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Tax Invoice", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW/2, 5, "Memo: "+sale.Memo, "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 5, r.timestamp(sale.CreatedAt).Format(r.dateLayout+" 15:04"), "", 1, "R", false, 0, "")
	pdf.Line(8, pdf.GetY()+1, pageW-8, pdf.GetY()+1)
	pdf.Ln(3)

	nameW := contentW * 0.46
	qtyW := contentW * 0.10
	priceW := contentW * 0.20
	totalW := contentW * 0.24

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(nameW, 6, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(qtyW, 6, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(priceW, 6, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(totalW, 6, "Amount", "B", 1, "R", false, 0, "")

	for _, item := range sale.Items {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(nameW, 5, tr(item.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(qtyW, 5, fmt.Sprintf("%d", item.Qty), "", 0, "C", false, 0, "")
		pdf.CellFormat(priceW, 5, money.Fixed(item.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(totalW, 5, money.Fixed(item.UnitPrice*float64(item.Qty)), "", 1, "R", false, 0, "")

		if details := lineDetails(item); details != "" {
			pdf.SetFont("Helvetica", "I", 7)
			pdf.CellFormat(contentW, 4, tr(details), "", 1, "L", false, 0, "")
		}
	}

	pdf.Line(8, pdf.GetY()+1, pageW-8, pdf.GetY()+1)
	pdf.Ln(3)

	labelW := contentW - totalW
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(labelW, 5, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(totalW, 5, r.money.FormatISO(sale.Subtotal), "", 1, "R", false, 0, "")
	if sale.Discount != 0 {
		pdf.CellFormat(labelW, 5, "Discount", "", 0, "R", false, 0, "")
		pdf.CellFormat(totalW, 5, "-"+r.money.FormatISO(sale.Discount), "", 1, "R", false, 0, "")
	}
	pdf.CellFormat(labelW, 5, "GST", "", 0, "R", false, 0, "")
	pdf.CellFormat(totalW, 5, r.money.FormatISO(sale.Tax), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelW, 7, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(totalW, 7, r.money.FormatISO(sale.Total), "", 1, "R", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Paid by "+strings.ToUpper(sale.PaymentMethod), "", 1, "L", false, 0, "")
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "Thank you. Get well soon!", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: render invoice %s: %w", sale.Memo, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) timestamp(ms int64) time.Time {
	return time.UnixMilli(ms).In(r.loc)
}

// safeCell stops spreadsheets from evaluating user text as a formula.
func safeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func itemSummary(items []domain.CartItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s (%d)", item.Name, item.Qty))
	}
	return strings.Join(parts, "; ")
}

func lineDetails(item domain.CartItem) string {
	var parts []string
	if item.Pack != "" {
		parts = append(parts, "Pack "+item.Pack)
	}
	if item.Batch != "" {
		parts = append(parts, "Batch "+item.Batch)
	}
	if item.Expiry != "" {
		parts = append(parts, "Exp "+item.Expiry)
	}
	if item.HSN != "" {
		parts = append(parts, "HSN "+item.HSN)
	}
	if item.TaxRate != 0 {
		parts = append(parts, fmt.Sprintf("GST %g%%", item.TaxRate))
	}
	if item.Discount != 0 {
		parts = append(parts, fmt.Sprintf("Disc %g%%", item.Discount))
	}
	return strings.Join(parts, "  ")
}
