// Package extract locates the free-text meeting notes inside a webhook payload of
// unknown shape, along with any meeting name and date it carries.
package extract

import (
	"strings"

	"github.com/tidwall/gjson"

	"meetingrelay/internal/domain"
)

// TranscriptKey holds the long-form transcript in payloads sent by the meeting tool.
const TranscriptKey = "krisp_blob"

const (
	meetingNameKey = "meeting_name"
	meetingDateKey = "meeting_date"
)

// TextKeys is probed in order against object payloads; the first present key wins.
var TextKeys = []string{
	TranscriptKey,
	"transcript",
	"notes",
	"summary",
	"text",
	"content",
	"body",
	"message",
}

type Result struct {
	Text    string
	Meeting domain.MeetingContext
}

// FromBytes extracts from a raw body. Bytes that are not valid JSON are returned
// verbatim as the text.
func FromBytes(raw []byte) Result {
	if !gjson.ValidBytes(raw) {
		return Result{Text: string(raw)}
	}
	return FromValue(gjson.ParseBytes(raw))
}

// FromString treats s as a string payload: JSON is decoded, anything else is text.
func FromString(s string) Result {
	if gjson.Valid(s) {
		return FromValue(gjson.Parse(s))
	}
	return Result{Text: s}
}

// FromValue extracts from an already decoded value.
func FromValue(v gjson.Result) Result {
	switch {
	case v.Type == gjson.String:
		return FromString(v.Str)
	case v.IsArray():
		return Result{Text: arrayText(v), Meeting: scanMeeting(v)}
	case v.IsObject():
		return Result{Text: objectText(v), Meeting: scanMeeting(v)}
	default:
		return Result{Text: v.String()}
	}
}

func arrayText(v gjson.Result) string {
	items := v.Array()
	if len(items) > 0 && items[0].IsObject() {
		if t, ok := present(items[0], TranscriptKey); ok {
			return t.String()
		}
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, "\n")
}

func objectText(v gjson.Result) string {
	for _, key := range TextKeys {
		if t, ok := present(v, key); ok {
			return t.String()
		}
	}
	return v.Raw
}

// present reports whether key is set to a non-null value on obj.
func present(obj gjson.Result, key string) (gjson.Result, bool) {
	r := obj.Get(key)
	if !r.Exists() || r.Type == gjson.Null {
		return r, false
	}
	return r, true
}

// scanMeeting looks for the meeting keys on the value itself (or on each element of
// an array) and one level down in nested objects. Each field keeps its first match.
func scanMeeting(v gjson.Result) domain.MeetingContext {
	var m domain.MeetingContext
	objects := []gjson.Result{v}
	if v.IsArray() {
		objects = v.Array()
	}
	for _, obj := range objects {
		if !obj.IsObject() {
			continue
		}
		fill(&m, obj)
		obj.ForEach(func(_, nested gjson.Result) bool {
			if nested.IsObject() {
				fill(&m, nested)
			}
			return m.Name == "" || m.Date == ""
		})
		if m.Name != "" && m.Date != "" {
			break
		}
	}
	return m
}

func fill(m *domain.MeetingContext, obj gjson.Result) {
	if m.Name == "" {
		if r, ok := present(obj, meetingNameKey); ok {
			m.Name = r.String()
		}
	}
	if m.Date == "" {
		if r, ok := present(obj, meetingDateKey); ok {
			m.Date = r.String()
		}
	}
}
