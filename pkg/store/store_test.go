package store

import "testing"

func TestDocumentAccessors(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantID  string
		wantRev string
	}{
		{name: "both set", doc: Document{"_id": "a", "_rev": "1-x"}, wantID: "a", wantRev: "1-x"},
		{name: "unset", doc: Document{"name": "n"}},
		{name: "non-string id", doc: Document{"_id": 42}},
		{name: "nil document", doc: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.ID(); got != tt.wantID {
				t.Errorf("ID() = %q, want %q", got, tt.wantID)
			}
			if got := tt.doc.Rev(); got != tt.wantRev {
				t.Errorf("Rev() = %q, want %q", got, tt.wantRev)
			}
		})
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{"_id": "a", "name": "n"}
	clone := doc.Clone()
	clone["name"] = "changed"
	delete(clone, "_id")

	if doc["name"] != "n" || doc.ID() != "a" {
		t.Errorf("clone must not share the top-level map: %v", doc)
	}
}
