package scraper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/engine/enginetest"
	"github.com/use-agent/offerscrape/models"
)

func TestDetectCaptcha(t *testing.T) {
	site := config.Default().Site
	tests := []struct {
		name string
		snap *models.Snapshot
		want bool
	}{
		{"nil snapshot", nil, false},
		{"product page", &models.Snapshot{Title: "Offer", HTML: productPage}, false},
		{"challenge title", &models.Snapshot{Title: "Captcha Interception", HTML: "<html></html>"}, true},
		{"localized title", &models.Snapshot{Title: "验证码拦截", HTML: "<html></html>"}, true},
		{"prompt text", &models.Snapshot{HTML: `<body><p>Please slide to verify</p></body>`}, true},
		{"localized prompt", &models.Snapshot{HTML: `<body><p>请按住滑块，拖动到最右边</p></body>`}, true},
		{"handle element only", &models.Snapshot{HTML: `<body><span id="nc_1_n1z"></span></body>`}, true},
		{"blank page", &models.Snapshot{HTML: `<head><title>x</title></head><body></body>`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCaptcha(tt.snap, site, nil))
		})
	}
}

func TestDetectCaptcha_BadSelector(t *testing.T) {
	site := config.Default().Site
	site.HandleSelector = "#["
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	assert.False(t, DetectCaptcha(&models.Snapshot{HTML: `<span id="nc_1_n1z"></span>`}, site, log))
	assert.Contains(t, buf.String(), "bad handle selector")
}

func TestNavigate(t *testing.T) {
	d := enginetest.New(map[string]string{retailURL: challengePage})

	snap, err := Navigate(context.Background(), d, retailURL, 0)
	require.NoError(t, err)
	assert.Equal(t, challengePage, snap.HTML)
	assert.Equal(t, retailURL, snap.URL)
	// Driver reports no title, so it is read from the markup.
	assert.Equal(t, "Captcha Interception", snap.Title)

	d.Titles[retailURL] = "from driver"
	snap, err = Snapshot(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "from driver", snap.Title)
}

func TestNavigate_DriverFault(t *testing.T) {
	d := enginetest.New(nil)
	d.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")

	_, err := Navigate(context.Background(), d, retailURL, 0)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeBrowserFault, se.Code)
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, models.ErrCodeTimeout, categorizeError(context.DeadlineExceeded, "x").Code)
	assert.Equal(t, models.ErrCodeTimeout, categorizeError(context.Canceled, "x").Code)
	assert.Equal(t, models.ErrCodeBrowserFault, categorizeError(errors.New("boom"), "x").Code)

	se := models.NewScrapeError(models.ErrCodeSessionInit, "kept", nil)
	assert.Same(t, se, categorizeError(se, "x"))
}
