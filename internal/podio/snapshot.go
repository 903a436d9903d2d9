package podio

// MissingField is substituted for fields an item does not carry.
const MissingField = ""

// FieldSnapshot maps external ids to the fields of one fetched item.
type FieldSnapshot struct {
	fields map[string]Field
}

// NewFieldSnapshot indexes fields by external id. Later duplicates are ignored.
func NewFieldSnapshot(fields []Field) FieldSnapshot {
	index := make(map[string]Field, len(fields))
	for _, f := range fields {
		if f.ExternalID == "" {
			continue
		}
		if _, ok := index[f.ExternalID]; ok {
			continue
		}
		index[f.ExternalID] = f
	}
	return FieldSnapshot{fields: index}
}

// Field returns the field with the given external id.
func (s FieldSnapshot) Field(id string) (Field, bool) {
	f, ok := s.fields[id]
	return f, ok
}

// Text returns the display text of a field, or MissingField if the item
// has no such field or it has no value.
func (s FieldSnapshot) Text(id string) string {
	f, ok := s.fields[id]
	if !ok {
		return MissingField
	}
	if text := f.Text(); text != "" {
		return text
	}
	return MissingField
}

// Len returns the number of indexed fields.
func (s FieldSnapshot) Len() int {
	return len(s.fields)
}
