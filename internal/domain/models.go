package domain

type Medicine struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Supplier         string  `json:"supplier"`
	WholesaleCost    float64 `json:"wholesaleCost"`
	Price            float64 `json:"price"`
	StockQty         int     `json:"stockQty"`
	ReorderThreshold int     `json:"reorderThreshold"`
	Pack             string  `json:"pack,omitempty"`
	Batch            string  `json:"batch,omitempty"`
	Expiry           string  `json:"expiry,omitempty"`
	HSN              string  `json:"hsn,omitempty"`
}

// MedicineInput is the add-medicine payload. A name that already exists in the
// catalog (case-insensitive) is merged into the existing entry.
type MedicineInput struct {
	Name             string  `json:"name" validate:"required"`
	Supplier         string  `json:"supplier" validate:"required"`
	WholesaleCost    float64 `json:"wholesaleCost" validate:"gte=0"`
	Price            float64 `json:"price" validate:"gt=0"`
	Quantity         int     `json:"quantity" validate:"gte=0"`
	ReorderThreshold int     `json:"reorderThreshold" validate:"gte=0"`
	Pack             string  `json:"pack,omitempty"`
	Batch            string  `json:"batch,omitempty"`
	Expiry           string  `json:"expiry,omitempty"`
	HSN              string  `json:"hsn,omitempty"`
}

type CartItem struct {
	MedicineID  string  `json:"medicineId"`
	Name        string  `json:"name"`
	Qty         int     `json:"qty"`
	UnitPrice   float64 `json:"unitPrice"`
	TaxRate     float64 `json:"taxRate"`
	Discount    float64 `json:"discount"`
	StockAtSale int     `json:"stockAtSale"`
	Pack        string  `json:"pack,omitempty"`
	Batch       string  `json:"batch,omitempty"`
	Expiry      string  `json:"expiry,omitempty"`
	HSN         string  `json:"hsn,omitempty"`
}

type Sale struct {
	ID            string     `json:"id"`
	Memo          string     `json:"memo"`
	CreatedAt     int64      `json:"createdAt"`
	Items         []CartItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Discount      float64    `json:"discount"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	Profit        float64    `json:"profit"`
	PaymentMethod string     `json:"paymentMethod"`
}

type RecordSaleRequest struct {
	Items         []CartItem `json:"items"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
}

type Kpis struct {
	TodayRevenue float64 `json:"todayRevenue"`
	TodayProfit  float64 `json:"todayProfit"`
	MonthRevenue float64 `json:"monthRevenue"`
	MonthProfit  float64 `json:"monthProfit"`
}

type BestSeller struct {
	MedicineID string `json:"medicineId"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
}

type TrendPoint struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID string
	Role   string
}

const (
	RoleOwner  = "owner"
	RoleWorker = "worker"
)

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentUPI     = "upi"
	PaymentUnknown = "unknown"
)
