package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/aluiziolira/go-market-harvest/config"
	"github.com/jarcoal/httpmock"
)

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.CatalogBaseURL = "http://catalog.test/search"

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transport := httpmock.NewMockTransport()
	client.WithTransport(transport)
	return client, transport
}

func searchBody(total int, productIDs ...int) string {
	products := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, fmt.Sprintf(`{"id": %d, "name": "Item %d"}`, id, id))
	}
	return fmt.Sprintf(`{"data": {"total": %d, "products": [%s]}}`, total, strings.Join(products, ","))
}

func TestFetchValidPage(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", `=~^http://catalog\.test/search`,
		httpmock.NewStringResponder(200, searchBody(250, 1, 2, 3)))

	result := client.Fetch(context.Background(), "phone", 1)
	if !result.Valid {
		t.Fatalf("result should be valid, got error %q", result.ErrorMessage)
	}
	if result.Total != 250 {
		t.Fatalf("total = %d, want 250", result.Total)
	}
	if len(result.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(result.Items))
	}
}

func TestFetchRequestParameters(t *testing.T) {
	client, transport := newTestClient(t)

	var gotURL string
	transport.RegisterResponder("GET", `=~^http://catalog\.test/search`,
		func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			return httpmock.NewStringResponse(200, searchBody(1, 1)), nil
		})

	client.Fetch(context.Background(), "зимняя куртка", 3)

	checks := []string{
		"curr=rub",
		"dest=-1255987",
		"page=3",
		"query=" + "%D0%B7%D0%B8%D0%BC%D0%BD%D1%8F%D1%8F+%D0%BA%D1%83%D1%80%D1%82%D0%BA%D0%B0",
		"resultset=catalog",
		"sort=popular",
	}
	for _, want := range checks {
		if !strings.Contains(gotURL, want) {
			t.Fatalf("request URL %q missing %q", gotURL, want)
		}
	}
}

func TestFetchTotalFallsBackToItemCount(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", `=~^http://catalog\.test/search`,
		httpmock.NewStringResponder(200, `{"data": {"products": [{"id": 1}, {"id": 2}]}}`))

	result := client.Fetch(context.Background(), "phone", 1)
	if !result.Valid {
		t.Fatalf("result should be valid, got error %q", result.ErrorMessage)
	}
	if result.Total != 2 {
		t.Fatalf("total = %d, want fallback to item count 2", result.Total)
	}
}

func TestFetchFailsSoft(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		wantMsg   string
	}{
		{
			name:      "http 404",
			responder: httpmock.NewStringResponder(404, ""),
			wantMsg:   "status 404",
		},
		{
			name:      "http 500",
			responder: httpmock.NewStringResponder(500, "oops"),
			wantMsg:   "status 500",
		},
		{
			name:      "malformed body",
			responder: httpmock.NewStringResponder(200, "<html>blocked</html>"),
			wantMsg:   "parsing marketplace response failed",
		},
		{
			name:      "empty product list",
			responder: httpmock.NewStringResponder(200, `{"data": {"total": 0, "products": []}}`),
			wantMsg:   "no results found",
		},
		{
			name:      "missing data section",
			responder: httpmock.NewStringResponder(200, `{}`),
			wantMsg:   "no results found",
		},
		{
			name:      "transport fault",
			responder: httpmock.NewErrorResponder(errors.New("connection refused")),
			wantMsg:   "marketplace request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newTestClient(t)
			transport.RegisterResponder("GET", `=~^http://catalog\.test/search`, tt.responder)

			result := client.Fetch(context.Background(), "phone", 1)
			if result.Valid {
				t.Fatalf("result should be invalid")
			}
			if result.Total != 0 || len(result.Items) != 0 {
				t.Fatalf("invalid result must carry no data, got total=%d items=%d", result.Total, len(result.Items))
			}
			if !strings.Contains(result.ErrorMessage, tt.wantMsg) {
				t.Fatalf("error message %q missing %q", result.ErrorMessage, tt.wantMsg)
			}
		})
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CatalogBaseURL = "http://"
	if _, err := NewClient(cfg); err == nil {
		t.Fatalf("expected error for base URL without host")
	}
}
