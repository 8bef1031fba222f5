package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultEndpoint is the Google Sheets values API.
const DefaultEndpoint = "https://sheets.googleapis.com/v4/spreadsheets"

// ErrUnauthorized marks an expired or revoked credential. It is fatal
// to the run and must be surfaced distinctly so the user knows to
// re-authorize rather than retry.
var ErrUnauthorized = errors.New("authorization expired — re-authorize Google Sheets access")

// Row is one row written to the sheet. Header and data rows share the
// wire shape but are constructed explicitly, never assembled
// positionally at call sites.
type Row struct {
	Cells  []string
	Header bool
}

// HeaderRow builds the header variant of a written row.
func HeaderRow(cells []string) Row {
	return Row{Cells: cells, Header: true}
}

// DataRow builds the data variant of a written row.
func DataRow(cells []string) Row {
	return Row{Cells: cells}
}

// Client speaks to one worksheet of one spreadsheet with bearer auth.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	spreadsheetID string
	sheetName     string
	token         string
}

// NewClient creates a Client for the given spreadsheet and worksheet.
func NewClient(endpoint, spreadsheetID, sheetName, token string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		endpoint:      endpoint,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		token:         token,
	}
}

// Fetch returns the current contents of the worksheet. An empty sheet
// yields a nil slice. HTTP 401 maps to ErrUnauthorized; any other
// non-success status is an error the caller must treat as fatal.
func (c *Client) Fetch(ctx context.Context) ([][]string, error) {
	u := fmt.Sprintf("%s/%s/values/%s", c.endpoint, c.spreadsheetID, c.sheetName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: creating fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sheets: fetch returned status %d", resp.StatusCode)
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("sheets: decoding fetch response: %w", err)
	}
	return body.Values, nil
}

// Append issues one append call with all rows, preserving their order.
func (c *Client) Append(ctx context.Context, rows []Row) error {
	payload := struct {
		Values [][]string `json:"values"`
	}{Values: make([][]string, 0, len(rows))}
	for _, r := range rows {
		payload.Values = append(payload.Values, r.Cells)
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sheets: encoding append payload: %w", err)
	}

	u := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW", c.endpoint, c.spreadsheetID, c.sheetName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("sheets: creating append request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets: append failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("sheets: append rejected: %s", appendErrorMessage(resp))
	}
	return nil
}

// appendErrorMessage extracts the service's own error message, falling
// back to the HTTP status when the body is not the expected shape.
func appendErrorMessage(resp *http.Response) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
