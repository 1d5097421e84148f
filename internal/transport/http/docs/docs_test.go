package docs

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/swaggo/swag"
)

func TestReadDocIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var parsed map[string]any
	if err := sonic.UnmarshalString(doc, &parsed); err != nil {
		t.Fatalf("doc is not valid json: %v", err)
	}
	if !strings.Contains(doc, "/recognize") {
		t.Fatal("doc missing /recognize path")
	}
}
