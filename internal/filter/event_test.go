package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Event
	}{
		{
			name:        "form verify",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=hook.verify&hook_id=77&code=abc",
			want:        Event{Kind: KindVerify, Type: "hook.verify", HookID: 77, RawHookID: "77", Code: "abc"},
		},
		{
			name:        "form item update",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=item.update&hook_id=77&item_id=42&item_revision_id=5",
			want:        Event{Kind: KindItemChanged, Type: "item.update", HookID: 77, RawHookID: "77", ItemID: 42, RevisionID: 5},
		},
		{
			name:        "json item create with numbers",
			contentType: "application/json",
			body:        `{"type":"item.create","hook_id":77,"item_id":42,"item_revision_id":1}`,
			want:        Event{Kind: KindItemChanged, Type: "item.create", HookID: 77, RawHookID: "77", ItemID: 42, RevisionID: 1},
		},
		{
			name:        "json detected without content type",
			contentType: "",
			body:        `{"type":"item.update","item_id":"42","item_revision_id":"9"}`,
			want:        Event{Kind: KindItemChanged, Type: "item.update", ItemID: 42, RevisionID: 9},
		},
		{
			name:        "item update without revision is other",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=item.update&item_id=42",
			want:        Event{Kind: KindOther, Type: "item.update", ItemID: 42},
		},
		{
			name:        "verify without code is other",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=hook.verify&hook_id=77",
			want:        Event{Kind: KindOther, Type: "hook.verify", HookID: 77, RawHookID: "77"},
		},
		{
			name:        "unknown type",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=item.delete&item_id=42&item_revision_id=3",
			want:        Event{Kind: KindOther, Type: "item.delete", ItemID: 42, RevisionID: 3},
		},
		{
			name:        "empty body",
			contentType: "application/x-www-form-urlencoded",
			body:        "",
			want:        Event{Kind: KindOther},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent(tt.contentType, []byte(tt.body))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	_, err := ParseEvent("application/json", []byte(`{"type":`))
	assert.Error(t, err)
}

func TestParseForwarded(t *testing.T) {
	ev, err := ParseForwarded("application/json", []byte(`{"item_id":42,"revision_id":5}`))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: KindItemChanged, ItemID: 42, RevisionID: 5}, ev)

	ev, err = ParseForwarded("application/x-www-form-urlencoded", []byte("item_id=42"))
	require.NoError(t, err)
	assert.Equal(t, KindItemChanged, ev.Kind)
	assert.Zero(t, ev.RevisionID)

	ev, err = ParseForwarded("application/json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, KindOther, ev.Kind)
}

func TestEvent_HookMismatch(t *testing.T) {
	tests := []struct {
		name       string
		declared   string
		configured int64
		want       bool
	}{
		{"matching", "77", 77, false},
		{"matching with spaces", " 77 ", 77, false},
		{"different", "78", 77, true},
		{"missing", "", 77, true},
		{"not a number", "abc", 77, true},
		{"negative", "-5", 77, true},
		{"trailing garbage", "77x", 77, true},
		{"gate disabled", "78", 0, false},
		{"gate disabled and missing", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Event{RawHookID: tt.declared}.HookMismatch(tt.configured))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "verify", KindVerify.String())
	assert.Equal(t, "item_changed", KindItemChanged.String())
	assert.Equal(t, "other", KindOther.String())
}
