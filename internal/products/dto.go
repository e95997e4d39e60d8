package products

// CreateProductRequest registers a product in a franchise's catalogue.
type CreateProductRequest struct {
	FranchiseID  int64   `json:"franchiseId" validate:"required,gt=0"`
	SKU          string  `json:"sku" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=2000"`
	Category     string  `json:"category" validate:"max=100"`
	BuyingPrice  float64 `json:"buyingPrice" validate:"gte=0"`
	SellingPrice float64 `json:"sellingPrice" validate:"gte=0"`
	InitialStock int64   `json:"initialStock" validate:"gte=0"`
}

// UpdateProductRequest edits catalogue fields. Stock counters are not part
// of this payload; they move only through the ledger.
type UpdateProductRequest struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=2000"`
	Category     string  `json:"category" validate:"max=100"`
	BuyingPrice  float64 `json:"buyingPrice" validate:"gte=0"`
	SellingPrice float64 `json:"sellingPrice" validate:"gte=0"`
	IsActive     bool    `json:"isActive"`
}

// AdjustStockRequest applies a manual stock correction through the ledger.
type AdjustStockRequest struct {
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListProductsRequest filters the catalogue listing.
type ListProductsRequest struct {
	FranchiseID int64
	Search      string
	Category    string
	IsActive    *bool
	LowStock    *int64
	Limit       int
	Offset      int
}
