package podio

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Item is the subset of a Podio item the relay reads.
type Item struct {
	ItemID int64   `json:"item_id"`
	Title  string  `json:"title"`
	Link   string  `json:"link"`
	Fields []Field `json:"fields"`
}

// Snapshot indexes the item's fields by external id.
func (i *Item) Snapshot() FieldSnapshot {
	if i == nil {
		return NewFieldSnapshot(nil)
	}
	return NewFieldSnapshot(i.Fields)
}

// Field is one app field with its current values.
type Field struct {
	FieldID    int64        `json:"field_id"`
	ExternalID string       `json:"external_id"`
	Type       string       `json:"type"`
	Label      string       `json:"label"`
	Values     []FieldValue `json:"values"`
}

// Text returns the display text of the first value.
func (f Field) Text() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0].Text(f.Type)
}

// FieldDiff is one entry of a revision diff.
type FieldDiff struct {
	FieldID    int64        `json:"field_id"`
	ExternalID string       `json:"external_id"`
	Type       string       `json:"type"`
	Label      string       `json:"label"`
	From       []FieldValue `json:"from"`
	To         []FieldValue `json:"to"`
}

// FieldValue holds one raw value. The shape of Value depends on the field type.
type FieldValue struct {
	Value json.RawMessage `json:"value,omitempty"`
	Embed *Embed          `json:"embed,omitempty"`
}

// Embed is the value of a link field.
type Embed struct {
	EmbedID int64  `json:"embed_id"`
	URL     string `json:"url"`
}

// Option is a category field choice.
type Option struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Comment is the response of a comment write.
type Comment struct {
	CommentID int64  `json:"comment_id"`
	Value     string `json:"value"`
}

// Text decodes the value following the schema of the field type:
//
//	text, number, date  -> value is a scalar
//	category            -> value.text
//	app                 -> value.title
//	contact             -> value.name
//	embed               -> embed.url (falls back to a scalar value)
//
// Unknown types try the scalar first, then text, title, name and url.
func (v FieldValue) Text(fieldType string) string {
	switch fieldType {
	case "embed":
		if v.Embed != nil && v.Embed.URL != "" {
			return v.Embed.URL
		}
		return v.scalar()
	case "category":
		return v.object().Text
	case "app":
		return v.object().Title
	case "contact":
		return v.object().Name
	case "text", "number", "date", "money", "duration", "progress":
		return v.scalar()
	}

	if s := v.scalar(); s != "" {
		return s
	}
	obj := v.object()
	for _, s := range []string{obj.Text, obj.Title, obj.Name, obj.URL} {
		if s != "" {
			return s
		}
	}
	if v.Embed != nil {
		return v.Embed.URL
	}
	return ""
}

// Option decodes a category choice. Plain numbers and strings are accepted
// as an option id and an option text respectively.
func (v FieldValue) Option() (Option, bool) {
	raw := bytes.TrimSpace(v.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Option{}, false
	}

	switch raw[0] {
	case '{':
		obj := v.object()
		return Option{ID: obj.ID, Text: obj.Text}, obj.ID != 0 || obj.Text != ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Option{}, false
		}
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Option{ID: id}, true
		}
		return Option{Text: s}, s != ""
	default:
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return Option{}, false
		}
		return Option{ID: id}, true
	}
}

type valueObject struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Title string `json:"title"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

func (v FieldValue) object() valueObject {
	var obj valueObject
	raw := bytes.TrimSpace(v.Value)
	if len(raw) == 0 || raw[0] != '{' {
		return obj
	}
	_ = json.Unmarshal(raw, &obj)
	return obj
}

func (v FieldValue) scalar() string {
	raw := bytes.TrimSpace(v.Value)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	case '{', '[', 'n':
		return ""
	default:
		return strings.TrimSpace(string(raw))
	}
}
