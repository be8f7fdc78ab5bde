package store

import (
	"encoding/json"
	"fmt"

	"pharmapos/backend/internal/domain"
)

// schemaVersion 2 added discounts, payment method, memo numbers and the
// invoice fields (pack, batch, expiry, hsn). Documents written before that
// carry no version field at all.
const schemaVersion = 2

type document struct {
	Version   int               `json:"version"`
	Medicines []domain.Medicine `json:"medicines"`
	Sales     []domain.Sale     `json:"sales"`
	NextMemo  int               `json:"nextMemo"`
}

// decodeDocument parses a persisted blob and upgrades it to the current
// schema. The returned flag reports whether an upgrade happened.
func decodeDocument(raw []byte) (*state, bool, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if doc.Version > schemaVersion {
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedSchema, doc.Version)
	}

	migrated := false
	if doc.Version < schemaVersion {
		migrateLegacy(&doc)
		migrated = true
	}
	if doc.NextMemo < len(doc.Sales)+1 {
		doc.NextMemo = len(doc.Sales) + 1
	}

	return newState(doc.Medicines, doc.Sales, doc.NextMemo), migrated, nil
}

// migrateLegacy fills the fields the narrow schema never had. Discounts are
// already zero after unmarshalling, so the stored totals stay additive.
func migrateLegacy(doc *document) {
	// Sales are stored newest first; memos are numbered oldest first.
	memo := 1
	for i := len(doc.Sales) - 1; i >= 0; i-- {
		sale := &doc.Sales[i]
		if sale.PaymentMethod == "" {
			sale.PaymentMethod = domain.PaymentUnknown
		}
		if sale.Memo == "" {
			sale.Memo = formatMemo(memo)
		}
		if sale.Items == nil {
			sale.Items = []domain.CartItem{}
		}
		memo++
	}
	doc.NextMemo = memo
	doc.Version = schemaVersion
}

func encodeDocument(st *state) ([]byte, error) {
	return json.Marshal(document{
		Version:   schemaVersion,
		Medicines: st.medicines,
		Sales:     st.sales,
		NextMemo:  st.nextMemo,
	})
}

func formatMemo(n int) string {
	return fmt.Sprintf("M-%06d", n)
}
