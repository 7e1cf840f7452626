// Package extractor pulls the embedded product JSON out of offer page markup.
package extractor

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/use-agent/offerscrape/models"
	"golang.org/x/net/html"
)

// pattern is one structural matcher. Group 1 is always the primary blob;
// group 2, when present, is the init blob.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns are tried in order, most specific first. The site has shipped
// both the plain and the double-underscore variable names.
var patterns = []pattern{
	{"global+init", regexp.MustCompile(`(?s)window\.GLOBAL_DADA\s*=\s*(\{.*?\});.*?window\.INIT_DATA\s*=\s*(\{.*?\});`)},
	{"__global+__init", regexp.MustCompile(`(?s)window\.__GLOBAL_DADA\s*=\s*(\{.*?\});.*?window\.__INIT_DATA\s*=\s*(\{.*?\});`)},
	{"global", regexp.MustCompile(`(?s)window\.GLOBAL_DADA\s*=\s*(\{.*?\});`)},
	{"__global", regexp.MustCompile(`(?s)window\.__GLOBAL_DADA\s*=\s*(\{.*?\});`)},
}

// Extractor finds and decodes the embedded payload.
type Extractor struct {
	log *slog.Logger
}

// New creates an Extractor.
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract returns the first payload that both matches structurally and
// decodes as JSON, or nil when no pattern yields one. A match that fails to
// decode is logged and the next pattern is tried.
func (x *Extractor) Extract(markup string) *models.Payload {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(markup)
		if m == nil {
			continue
		}

		var payload models.Payload
		if err := json.Unmarshal([]byte(m[1]), &payload.GlobalData); err != nil {
			x.log.Warn("embedded data did not decode", "pattern", p.name, "blob", "global", "error", err)
			continue
		}
		if len(m) > 2 {
			if err := json.Unmarshal([]byte(m[2]), &payload.InitData); err != nil {
				x.log.Warn("embedded data did not decode", "pattern", p.name, "blob", "init", "error", err)
				continue
			}
		}
		x.log.Debug("embedded data extracted", "pattern", p.name)
		return &payload
	}
	return nil
}

// Title returns the text of the first <title> element, or "Unknown page".
// Used to describe pages that carried no payload.
func Title(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "Unknown page"
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					if t := strings.TrimSpace(string(tokenizer.Text())); t != "" {
						return t
					}
				}
				return "Unknown page"
			}
		}
	}
}
