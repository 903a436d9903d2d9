// Package filter classifies inbound Podio notifications and decides whether
// an item change moved the status field into the ready-for-review state.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

// Kind is the classification of an inbound notification.
type Kind int

const (
	// KindOther covers unknown types and events missing required identifiers.
	KindOther Kind = iota
	// KindVerify is the webhook verification challenge.
	KindVerify
	// KindItemChanged is an item create/update carrying a revision.
	KindItemChanged
)

func (k Kind) String() string {
	switch k {
	case KindVerify:
		return "verify"
	case KindItemChanged:
		return "item_changed"
	default:
		return "other"
	}
}

// Event is a parsed webhook notification.
type Event struct {
	Kind       Kind
	Type       string
	HookID     int64
	RawHookID  string
	Code       string
	ItemID     int64
	RevisionID int64
}

// HookMismatch reports whether the event fails the hook gate. With a
// configured id the hook_id must be present, numeric and equal to it; a zero
// configured id disables the check.
func (e Event) HookMismatch(configured int64) bool {
	if configured == 0 {
		return false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(e.RawHookID), 10, 64)
	return err != nil || id != configured
}

// ParseEvent decodes a notification body. JSON bodies are recognised by
// content type or a leading '{'; everything else is read as a form.
func ParseEvent(contentType string, body []byte) (Event, error) {
	values, err := decodeValues(contentType, body)
	if err != nil {
		return Event{}, err
	}
	return classify(values), nil
}

// ParseForwarded decodes the {item_id, revision_id} body sent by the
// companion plugin. The event is an item change regardless of type.
func ParseForwarded(contentType string, body []byte) (Event, error) {
	values, err := decodeValues(contentType, body)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Type:       values.Get("type"),
		HookID:     parseID(values.Get("hook_id")),
		RawHookID:  values.Get("hook_id"),
		ItemID:     parseID(values.Get("item_id")),
		RevisionID: parseID(firstNonEmpty(values.Get("revision_id"), values.Get("item_revision_id"))),
	}
	if ev.ItemID > 0 {
		ev.Kind = KindItemChanged
	}
	return ev, nil
}

func classify(values url.Values) Event {
	ev := Event{
		Type:       values.Get("type"),
		HookID:     parseID(values.Get("hook_id")),
		RawHookID:  values.Get("hook_id"),
		Code:       values.Get("code"),
		ItemID:     parseID(values.Get("item_id")),
		RevisionID: parseID(firstNonEmpty(values.Get("item_revision_id"), values.Get("revision_id"))),
	}

	switch ev.Type {
	case "hook.verify":
		if ev.HookID > 0 && ev.Code != "" {
			ev.Kind = KindVerify
		}
	case "item.create", "item.update":
		if ev.ItemID > 0 && ev.RevisionID > 0 {
			ev.Kind = KindItemChanged
		}
	}
	return ev
}

func decodeValues(contentType string, body []byte) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)

	if mediaType == "application/json" || (len(trimmed) > 0 && trimmed[0] == '{') {
		return decodeJSON(trimmed)
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	return values, nil
}

func decodeJSON(body []byte) (url.Values, error) {
	values := url.Values{}
	if len(body) == 0 {
		return values, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	for key, v := range raw {
		switch val := v.(type) {
		case string:
			values.Set(key, val)
		case json.Number:
			values.Set(key, val.String())
		case bool:
			values.Set(key, strconv.FormatBool(val))
		}
	}
	return values, nil
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
