package models

// BatchRequest is the payload for POST {prefix}/product/batch.
type BatchRequest struct {
	// ProductIDs is the list of offer ids to fetch. Required.
	ProductIDs []string `json:"product_ids" binding:"required,min=1,max=50,dive,numeric"`

	// WebhookURL receives a "batch.completed" event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256 when set.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST {prefix}/product/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchItem is the outcome for one product in a batch.
type BatchItem struct {
	ProductID string       `json:"product_id"`
	Success   bool         `json:"success"`
	Data      ProductData  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET {prefix}/product/batch/:id.
type BatchStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Results   []*BatchItem `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch fetch.
type BatchJob struct {
	ID        string
	Status    string // "processing", "completed", "failed", "partial"
	Total     int
	Completed int
	Results   []*BatchItem
	CreatedAt int64 // unix timestamp
}
