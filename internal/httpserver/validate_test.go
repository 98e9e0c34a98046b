package httpserver

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleRequest struct {
	Title    string `json:"title" validate:"required,min=3"`
	Severity string `json:"severity" validate:"required,oneof=critical high warning info"`
	Count    int    `json:"count" validate:"omitempty,gte=1"`
}

func decodeSample(t *testing.T, body string) (sampleRequest, error) {
	t.Helper()
	r := httptest.NewRequest("POST", "/incidents", strings.NewReader(body))
	var req sampleRequest
	err := Decode(r, &req)
	return req, err
}

func TestDecode(t *testing.T) {
	req, err := decodeSample(t, `{"title":"API down","severity":"critical"}`)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if req.Title != "API down" || req.Severity != "critical" {
		t.Errorf("decoded = %+v", req)
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPart string
	}{
		{"empty body", "", "empty"},
		{"malformed", `{"title":`, "JSON"},
		{"unknown field", `{"title":"x","severity":"info","bogus":1}`, "bogus"},
		{"wrong type", `{"title":"x","severity":"info","count":"three"}`, "count"},
		{"trailing data", `{"title":"x","severity":"info"} {"again":true}`, "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSample(t, tt.body)
			if err == nil {
				t.Fatal("Decode() accepted invalid body")
			}
			if !strings.Contains(err.Error(), tt.wantPart) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantPart)
			}
		})
	}
}

func TestValidateFieldNamesFromJSONTags(t *testing.T) {
	errs := Validate(sampleRequest{Severity: "urgent"})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %+v", len(errs), errs)
	}

	byField := map[string]string{}
	for _, e := range errs {
		byField[e.Field] = e.Message
	}
	if _, ok := byField["title"]; !ok {
		t.Errorf("missing error for json field name title: %v", byField)
	}
	if msg, ok := byField["severity"]; !ok || !strings.Contains(msg, "critical") {
		t.Errorf("severity error = %q, want the allowed values listed", msg)
	}
}

func TestValidateOK(t *testing.T) {
	if errs := Validate(sampleRequest{Title: "All good", Severity: "info", Count: 2}); errs != nil {
		t.Errorf("Validate() = %v, want nil", errs)
	}
}
