package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/docqa/docqa/pkg/vectorstore"
)

var _ vectorstore.Store = (*Store)(nil)

func TestToPoint(t *testing.T) {
	id := "5f0c1d2e-3b4a-4c5d-8e9f-0a1b2c3d4e5f"
	payload := qdrant.NewValueMap(map[string]any{
		"text":     "Invoice #42",
		"filename": "acme.pdf",
	})
	p := toPoint(qdrant.NewID(id), payload)
	if p.ID != id {
		t.Errorf("expected id %s, got %s", id, p.ID)
	}
	if p.Payload.Text != "Invoice #42" || p.Payload.Filename != "acme.pdf" {
		t.Errorf("unexpected payload %+v", p.Payload)
	}
}

func TestToPointMissingPayload(t *testing.T) {
	p := toPoint(qdrant.NewIDNum(7), nil)
	if p.ID != "7" {
		t.Errorf("expected numeric id 7, got %q", p.ID)
	}
	if p.Payload.Text != "" || p.Payload.Filename != "" {
		t.Errorf("expected empty payload, got %+v", p.Payload)
	}
}
