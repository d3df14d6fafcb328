package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

func TestSwaggerDocRegisteredAndValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	var parsed struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	if parsed.BasePath != "/api/v1" {
		t.Fatalf("basePath = %q", parsed.BasePath)
	}
	if _, ok := parsed.Paths["/users"]["post"]; !ok {
		t.Fatalf("missing POST /users")
	}
	if _, ok := parsed.Paths["/users/{id}"]["get"]; !ok {
		t.Fatalf("missing GET /users/{id}")
	}
}
