package store

import (
	"context"
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var demoMedicines = []domain.MedicineInput{
	{Name: "Paracetamol 500mg", Supplier: "Wellness Wholesale", WholesaleCost: 0.10, Price: 0.40, Quantity: 200, ReorderThreshold: 20},
	{Name: "Ibuprofen 200mg", Supplier: "HealthSuppliers Inc.", WholesaleCost: 0.12, Price: 0.50, Quantity: 150, ReorderThreshold: 15},
	{Name: "Cough Syrup 100ml", Supplier: "CarePharma", WholesaleCost: 1.20, Price: 2.00, Quantity: 80, ReorderThreshold: 10},
	{Name: "Vitamin C 1000mg", Supplier: "NutriChain", WholesaleCost: 0.20, Price: 0.80, Quantity: 120, ReorderThreshold: 20},
	{Name: "Antacid Tabs", Supplier: "GastroGood", WholesaleCost: 0.08, Price: 0.40, Quantity: 90, ReorderThreshold: 10},
}

// EnsureSeed fills an empty catalog with the demo medicines.
func (s *Store) EnsureSeed(ctx context.Context) error {
	return s.mutate(ctx, func(next *state) (bool, error) {
		if len(next.medicines) > 0 {
			return false, nil
		}
		for _, in := range demoMedicines {
			next.insert(newMedicine(in))
		}
		s.logger.Info().Int("medicines", len(demoMedicines)).Msg("seeded demo catalog")
		return true, nil
	})
}

func (s *Store) GetAllMedicines(ctx context.Context) ([]domain.Medicine, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(st.medicines), nil
}

// ListAll filters the catalog by a case-insensitive substring of name or
// supplier. A blank query lists everything.
func (s *Store) ListAll(ctx context.Context, query string) ([]domain.Medicine, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(st.medicines), nil
	}
	return filterMedicines(st.medicines, q), nil
}

// Suggest matches like ListAll but returns nothing for a blank query.
func (s *Store) Suggest(ctx context.Context, query string) ([]domain.Medicine, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.Medicine{}, nil
	}
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return filterMedicines(st.medicines, q), nil
}

func (s *Store) SearchMedicines(ctx context.Context, query string) ([]domain.Medicine, error) {
	return s.ListAll(ctx, query)
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (domain.Medicine, bool, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return domain.Medicine{}, false, err
	}
	pos, ok := st.index[id]
	if !ok {
		return domain.Medicine{}, false, nil
	}
	return st.medicines[pos], true, nil
}

// AddMedicine inserts a new catalog entry, or restocks and reprices the
// entry whose name matches case-insensitively.
func (s *Store) AddMedicine(ctx context.Context, input domain.MedicineInput) (domain.Medicine, error) {
	input = normalizeInput(input)
	if err := validateInput(input); err != nil {
		return domain.Medicine{}, err
	}

	var result domain.Medicine
	err := s.mutate(ctx, func(next *state) (bool, error) {
		pos := next.findByName(input.Name)
		if pos < 0 {
			result = next.insert(newMedicine(input))
			s.logger.Info().Str("medicine_id", result.ID).Str("name", result.Name).Msg("medicine added")
			return true, nil
		}

		med := &next.medicines[pos]
		med.StockQty += input.Quantity
		med.WholesaleCost = input.WholesaleCost
		med.Price = input.Price
		med.ReorderThreshold = input.ReorderThreshold
		mergeOptional(&med.Pack, input.Pack)
		mergeOptional(&med.Batch, input.Batch)
		mergeOptional(&med.Expiry, input.Expiry)
		mergeOptional(&med.HSN, input.HSN)
		result = *med
		s.logger.Info().
			Str("medicine_id", med.ID).
			Int("added", input.Quantity).
			Int("stock", med.StockQty).
			Msg("medicine restocked")
		return true, nil
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	return result, nil
}

func (st *state) insert(med domain.Medicine) domain.Medicine {
	st.index[med.ID] = len(st.medicines)
	st.medicines = append(st.medicines, med)
	return med
}

func (st *state) findByName(name string) int {
	for i, med := range st.medicines {
		if strings.EqualFold(strings.TrimSpace(med.Name), name) {
			return i
		}
	}
	return -1
}

func newMedicine(in domain.MedicineInput) domain.Medicine {
	return domain.Medicine{
		ID:               xid.New("med"),
		Name:             in.Name,
		Supplier:         in.Supplier,
		WholesaleCost:    in.WholesaleCost,
		Price:            in.Price,
		StockQty:         in.Quantity,
		ReorderThreshold: in.ReorderThreshold,
		Pack:             in.Pack,
		Batch:            in.Batch,
		Expiry:           in.Expiry,
		HSN:              in.HSN,
	}
}

func filterMedicines(medicines []domain.Medicine, q string) []domain.Medicine {
	out := make([]domain.Medicine, 0)
	for _, med := range medicines {
		if strings.Contains(strings.ToLower(med.Name), q) || strings.Contains(strings.ToLower(med.Supplier), q) {
			out = append(out, med)
		}
	}
	return out
}

func normalizeInput(in domain.MedicineInput) domain.MedicineInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Supplier = strings.TrimSpace(in.Supplier)
	in.Pack = strings.TrimSpace(in.Pack)
	in.Batch = strings.TrimSpace(in.Batch)
	in.Expiry = strings.TrimSpace(in.Expiry)
	in.HSN = strings.TrimSpace(in.HSN)
	return in
}

func validateInput(in domain.MedicineInput) error {
	fields := map[string]string{}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describeTag(fe)
		}
	}
	if math.IsInf(in.WholesaleCost, 0) || math.IsNaN(in.WholesaleCost) {
		fields["wholesaleCost"] = "must be a finite number"
	}
	if math.IsInf(in.Price, 0) || math.IsNaN(in.Price) {
		fields["price"] = "must be a finite number"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

func mergeOptional(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
