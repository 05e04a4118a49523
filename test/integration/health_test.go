package integration

import (
	"io"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(testEnv.Gateway.URL + "/healthz")
	if err != nil {
		t.Fatalf("getting healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, testEnv.Gateway.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "int-req-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "int-req-1" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}
