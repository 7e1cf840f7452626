package models

import (
	"fmt"
	"strings"
)

// URLType distinguishes the two listing variants of one offer page.
type URLType string

const (
	URLTypeRetail    URLType = "retail"
	URLTypeWholesale URLType = "wholesale"
)

// skParam is the trailing query value the site uses to select a variant.
var skParam = map[URLType]string{
	URLTypeRetail:    "order",
	URLTypeWholesale: "consign",
}

// TargetURL is one page to fetch for a product.
type TargetURL struct {
	Type URLType
	URL  string
}

// TargetURLs derives the retail and wholesale URLs for a product, in that order.
func TargetURLs(baseURL, productID string) []TargetURL {
	base := strings.TrimRight(baseURL, "/")
	types := []URLType{URLTypeRetail, URLTypeWholesale}
	out := make([]TargetURL, 0, len(types))
	for _, t := range types {
		out = append(out, TargetURL{
			Type: t,
			URL:  fmt.Sprintf("%s/%s.html?sk=%s", base, productID, skParam[t]),
		})
	}
	return out
}

// Payload is the structured data embedded in an offer page.
// InitData is nil when the page only carried the primary blob.
type Payload struct {
	GlobalData map[string]any `json:"global_data"`
	InitData   map[string]any `json:"init_data"`
}

// ProductData maps each successfully fetched URL type to its payload.
// URL types that failed are absent.
type ProductData map[URLType]*Payload

// Snapshot is the page state read after navigation.
type Snapshot struct {
	HTML  string
	Title string
	URL   string
}

// ChallengeState tracks the slider captcha for one navigation.
type ChallengeState struct {
	Detected bool
	Attempts int
	Resolved bool
}

// URLOutcome records how a single URL type fared.
type URLOutcome struct {
	Target    TargetURL
	Challenge ChallengeState
	Title     string
	Payload   *Payload
	Err       error
}
