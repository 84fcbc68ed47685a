package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/readerd/oauth/instrumentation"
)

func TestIsURLClientID(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		want     bool
	}{
		{"https URL", "https://app.example.com/oauth-client.json", true},
		{"https URL without path", "https://app.example.com", true},
		{"http URL", "http://app.example.com/client.json", false},
		{"opaque ID", "4a5b6c7d8e9f", false},
		{"empty", "", false},
		{"custom scheme", "myapp://client", false},
		{"scheme only", "https://", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isURLClientID(tt.clientID); got != tt.want {
				t.Errorf("isURLClientID(%q) = %v, want %v", tt.clientID, got, tt.want)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"8.8.8.8", false},
		{"::1", true},
		{"fc00::1", true},
		{"fd12:3456::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("ParseIP(%q) = nil", tt.ip)
			}
			if got := isPrivateIP(ip); got != tt.want {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestValidateMetadataURL(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		wantErr  string
	}{
		{"http rejected", "http://app.example.com/client.json", "must use HTTPS"},
		{"loopback rejected", "https://127.0.0.1/client.json", "private/internal IP"},
		{"private range rejected", "https://10.0.0.5/client.json", "private/internal IP"},
		{"localhost rejected", "https://localhost/client.json", "private/internal IP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMetadataURL(tt.clientID)
			if err == nil {
				t.Fatalf("validateMetadataURL(%q) = nil, want error", tt.clientID)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestFetchClientMetadata_SSRFGuard(t *testing.T) {
	// httptest servers listen on loopback, which the SSRF guard rejects
	// before any request is made
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the server despite SSRF guard")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ClientMetadata{})
	}))
	defer ts.Close()

	srv, _ := setupTestServer(t)

	_, err := srv.fetchClientMetadata(context.Background(), ts.URL+"/client.json")
	if err == nil {
		t.Fatal("fetchClientMetadata() = nil, want SSRF error")
	}
	if !strings.Contains(err.Error(), "private/internal IP") {
		t.Errorf("error = %v, want SSRF rejection", err)
	}
}

// Every fetch outcome must land in the fetches counter, failures included;
// the recording is deferred so no early return can skip it.
func TestFetchClientMetadata_FailureRecordsFetchMetric(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:       true,
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}

	srv, _ := setupTestServer(t)
	srv.SetInstrumentation(inst)

	// Loopback is rejected by the SSRF guard, so the fetch fails without
	// any network traffic
	if _, fetchErr := srv.fetchClientMetadata(ctx, "https://127.0.0.1/client.json"); fetchErr == nil {
		t.Fatal("fetchClientMetadata() = nil, want error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var failures int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "oauth.client_metadata.fetches" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("fetches data = %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key("success")); found && !v.AsBool() {
					failures += dp.Value
				}
			}
		}
	}
	if failures != 1 {
		t.Errorf("failed fetch datapoints = %d, want 1", failures)
	}
}
