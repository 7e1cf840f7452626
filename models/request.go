package models

// ProductRequest is the path payload for POST {prefix}/product/search-by-id/:product_id.
type ProductRequest struct {
	// ProductID is the numeric offer id. Required.
	ProductID string `uri:"product_id" binding:"required,numeric"`
}

// ProductQuery holds the optional query parameters of the product endpoint.
type ProductQuery struct {
	// MaxAge, in milliseconds, enables the in-memory result cache. A cached
	// result younger than MaxAge is returned without opening a browser.
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`
}
