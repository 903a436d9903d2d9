package podio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemJSON = `{
  "item_id": 42,
  "title": "Launch Copy",
  "fields": [
    {"external_id": "titulo-2", "type": "text", "values": [{"value": "Launch Copy"}]},
    {"external_id": "cliente", "type": "app", "values": [{"value": {"item_id": 9, "title": "Acme"}}]},
    {"external_id": "tipo-do-job", "type": "category", "values": [{"value": {"id": 2, "text": "Blog post"}}]},
    {"external_id": "time-envolvido", "type": "contact", "values": [{"value": {"profile_id": 5, "name": "Ana Souza"}}]},
    {"external_id": "link-do-texto", "type": "embed", "values": [{"embed": {"embed_id": 1, "url": "https://docs.google.com/document/d/abc123/edit"}}]},
    {"external_id": "status", "type": "category", "values": [{"value": {"id": 4, "text": "Pronto para revisão"}}]},
    {"external_id": "prazo", "type": "number", "values": [{"value": 12.5}]},
    {"external_id": "vazio", "type": "text", "values": []}
  ]
}`

func loadItem(t *testing.T) *Item {
	t.Helper()
	var item Item
	require.NoError(t, json.Unmarshal([]byte(itemJSON), &item))
	return &item
}

func TestFieldSnapshot_TextByFieldType(t *testing.T) {
	snap := loadItem(t).Snapshot()

	tests := []struct {
		id   string
		want string
	}{
		{"titulo-2", "Launch Copy"},
		{"cliente", "Acme"},
		{"tipo-do-job", "Blog post"},
		{"time-envolvido", "Ana Souza"},
		{"link-do-texto", "https://docs.google.com/document/d/abc123/edit"},
		{"status", "Pronto para revisão"},
		{"prazo", "12.5"},
		{"vazio", MissingField},
		{"observacoes-e-links", MissingField},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.Text(tt.id))
		})
	}
}

func TestFieldSnapshot_FieldLookup(t *testing.T) {
	snap := loadItem(t).Snapshot()

	f, ok := snap.Field("status")
	require.True(t, ok)
	assert.Equal(t, "category", f.Type)

	_, ok = snap.Field("briefing")
	assert.False(t, ok)
	assert.Equal(t, 8, snap.Len())
}

func TestFieldSnapshot_NilItem(t *testing.T) {
	var item *Item
	snap := item.Snapshot()
	assert.Equal(t, MissingField, snap.Text("anything"))
}

func TestFieldValue_Option(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Option
		wantOK bool
	}{
		{"category object", `{"id":4,"text":"Pronto"}`, Option{ID: 4, Text: "Pronto"}, true},
		{"bare number", `4`, Option{ID: 4}, true},
		{"numeric string", `"4"`, Option{ID: 4}, true},
		{"label string", `"Pronto"`, Option{Text: "Pronto"}, true},
		{"null", `null`, Option{}, false},
		{"empty object", `{}`, Option{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FieldValue{Value: json.RawMessage(tt.raw)}.Option()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldValue_TextUnknownType(t *testing.T) {
	tests := []struct {
		name  string
		value FieldValue
		want  string
	}{
		{"string", FieldValue{Value: json.RawMessage(`"plain"`)}, "plain"},
		{"object title", FieldValue{Value: json.RawMessage(`{"title":"Acme"}`)}, "Acme"},
		{"object text", FieldValue{Value: json.RawMessage(`{"text":"Blog"}`)}, "Blog"},
		{"embed only", FieldValue{Embed: &Embed{URL: "https://example.com"}}, "https://example.com"},
		{"nothing", FieldValue{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Text(""))
		})
	}
}

func TestFieldValue_EmbedFallsBackToValue(t *testing.T) {
	v := FieldValue{Value: json.RawMessage(`"https://docs.google.com/document/d/xyz"`)}
	assert.Equal(t, "https://docs.google.com/document/d/xyz", v.Text("embed"))
}
