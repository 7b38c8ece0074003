package model

// Product is a read-only catalog entry fetched from the commerce API.
// The JSON tags follow the upstream payload so it can be decoded directly.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html,omitempty"`
	ProductType string    `json:"product_type"`
	Vendor      string    `json:"vendor"`
	Tags        string    `json:"tags"` // comma-separated, as the API sends it
	Handle      string    `json:"handle,omitempty"`
	Image       *Image    `json:"image,omitempty"`
	Variants    []Variant `json:"variants"`
}

type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

type Variant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	SKU               string `json:"sku"`
	InventoryQuantity int    `json:"inventory_quantity"`
}
