package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/models"
)

type stubFetcher map[string]error

func (s stubFetcher) FetchProduct(ctx context.Context, id string) (models.ProductData, error) {
	if err := s[id]; err != nil {
		return nil, err
	}
	return models.ProductData{models.URLTypeWholesale: {GlobalData: map[string]any{"id": id}}}, nil
}

func TestRun(t *testing.T) {
	f := stubFetcher{"2": models.NewScrapeError(models.ErrCodeCaptchaUnsolved, "captcha challenge failed", nil)}
	var out bytes.Buffer

	err := run(context.Background(), f, []string{"1", "2"}, &out, false)
	require.EqualError(t, err, "1 of 2 products failed")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first, second result
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "1", first.ProductID)
	assert.Nil(t, first.Error)
	assert.Contains(t, first.Data, models.URLTypeWholesale)
	assert.Equal(t, models.ErrCodeCaptchaUnsolved, second.Error.Code)
}

func TestRootCmd(t *testing.T) {
	t.Setenv("OFFERSCRAPE_CONFIG_FILE", "")
	var gotCfg *config.Config
	cmd := newRootCmd(func(cfg *config.Config, _ io.Writer) fetcher {
		gotCfg = cfg
		return stubFetcher{}
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--headless=false", "--dump-dir", "/tmp/dumps", "42"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, gotCfg)
	assert.False(t, gotCfg.Browser.Headless)
	assert.Equal(t, "/tmp/dumps", gotCfg.Scraper.DebugDumpDir)
	assert.Contains(t, out.String(), `"product_id":"42"`)
}

func TestRootCmd_RejectsNonNumeric(t *testing.T) {
	cmd := newRootCmd(func(*config.Config, io.Writer) fetcher {
		t.Fatal("should not build")
		return nil
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"12a"})
	assert.Error(t, cmd.Execute())
}
