package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// productResponse mirrors both the success and the error body of the
// product endpoint.
type productResponse struct {
	Code    int                        `json:"code"`
	Msg     string                     `json:"msg"`
	Message string                     `json:"message"`
	Data    map[string]json.RawMessage `json:"data"`
}

type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

type batchStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Results   []struct {
		ProductID string          `json:"product_id"`
		Success   bool            `json:"success"`
		Data      json.RawMessage `json:"data"`
		Error     *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"results"`
}

// client talks to a running offerscrape server.
type client struct {
	baseURL string // e.g. http://127.0.0.1:8000/api
	apiKey  string
	http    *http.Client
	poll    time.Duration
}

func main() {
	apiURL := os.Getenv("OFFERSCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000/api"
	}
	c := &client{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  os.Getenv("OFFERSCRAPE_API_KEY"),
		http:    &http.Client{Timeout: 10 * time.Minute},
		poll:    2 * time.Second,
	}

	if err := server.ServeStdio(newServer(c)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"offerscrape",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch_product",
		mcp.WithDescription("Fetch the embedded retail and wholesale data of a 1688.com offer by its numeric product id. Drives a real browser and solves slider captchas, so a call can take a minute or more."),
		mcp.WithString("product_id",
			mcp.Required(),
			mcp.Description("Numeric offer id, e.g. 745785638968"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result up to this many milliseconds old"),
		),
	)
	s.AddTool(fetchTool, c.handleFetchProduct)

	batchTool := mcp.NewTool("batch_fetch_products",
		mcp.WithDescription("Fetch several 1688.com offers concurrently and return the data for each."),
		mcp.WithArray("product_ids",
			mcp.Required(),
			mcp.Description("Numeric offer ids (at most 50)"),
		),
	)
	s.AddTool(batchTool, c.handleBatchFetch)

	return s
}

func (c *client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func (c *client) handleFetchProduct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("product_id")
	if err != nil {
		return mcp.NewToolResultError("product_id is required"), nil
	}

	path := "/product/search-by-id/" + id
	if maxAge := request.GetInt("max_age", 0); maxAge > 0 {
		path += fmt.Sprintf("?max_age=%d", maxAge)
	}

	status, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var pr productResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
	}
	if status != http.StatusOK {
		return mcp.NewToolResultError(fmt.Sprintf("[%d] %s", pr.Code, pr.Message)), nil
	}

	return mcp.NewToolResultText(formatProduct(id, pr.Data)), nil
}

func (c *client) handleBatchFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := request.RequireStringSlice("product_ids")
	if err != nil {
		return mcp.NewToolResultError("product_ids is required and must be an array of strings"), nil
	}

	status, body, err := c.do(ctx, http.MethodPost, "/product/batch", map[string]any{"product_ids": ids})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
	}
	var br batchResponse
	if err := json.Unmarshal(body, &br); err != nil || br.ID == "" {
		return mcp.NewToolResultError(fmt.Sprintf("batch job creation failed (status %d)", status)), nil
	}

	st, err := c.waitForBatch(ctx, br.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n\n", st.ID, st.Status, st.Completed, st.Total)
	for _, r := range st.Results {
		if r.Success {
			var data map[string]json.RawMessage
			_ = json.Unmarshal(r.Data, &data)
			sb.WriteString(formatProduct(r.ProductID, data))
			sb.WriteString("\n")
			continue
		}
		msg := "unknown error"
		if r.Error != nil {
			msg = fmt.Sprintf("[%s] %s", r.Error.Code, r.Error.Message)
		}
		fmt.Fprintf(&sb, "--- %s FAILED: %s ---\n\n", r.ProductID, msg)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// waitForBatch polls until the job leaves "processing" or ctx ends.
func (c *client) waitForBatch(ctx context.Context, id string) (*batchStatusResponse, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			_, body, err := c.do(ctx, http.MethodGet, "/product/batch/"+id, nil)
			if err != nil {
				return nil, err
			}
			var st batchStatusResponse
			if err := json.Unmarshal(body, &st); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if st.Status != "processing" {
				return &st, nil
			}
		}
	}
}

// formatProduct renders each URL type's payload as indented JSON.
func formatProduct(id string, data map[string]json.RawMessage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s ---\n", id)
	for _, key := range []string{"retail", "wholesale"} {
		raw, ok := data[key]
		if !ok {
			fmt.Fprintf(&sb, "%s: (no data)\n", key)
			continue
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			pretty.Write(raw)
		}
		fmt.Fprintf(&sb, "%s:\n%s\n", key, pretty.String())
	}
	return sb.String()
}
