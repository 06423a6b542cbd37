// Package fields implements the editor's field composer: the bidirectional
// mapping between a node's persisted content/media/options and the ordered
// list of editable fields shown while the node is open.
//
// Fields are transient. They exist only for the lifetime of an edit; Combine
// flattens them back into the node's persisted shape on apply.
package fields

import (
	"strings"

	"github.com/google/uuid"

	"github.com/repairkit/fixtree/pkg/schema"
)

// FieldType enumerates the kinds of editable fields.
type FieldType string

const (
	TypeContent FieldType = "content"
	TypeMedia   FieldType = "media"
	TypeOptions FieldType = "options"
)

// Field is one editable unit of a node's content.
// Only the payload matching Type is meaningful.
type Field struct {
	ID      string             `json:"id"`
	Type    FieldType          `json:"type"`
	Content string             `json:"content,omitempty"`
	Media   []schema.MediaItem `json:"media,omitempty"`
	Options []string           `json:"options,omitempty"`
}

// NodeData is the persisted shape a field list flattens into.
type NodeData struct {
	Content string             `json:"content"`
	Media   []schema.MediaItem `json:"media,omitempty"`
	Options []string           `json:"options,omitempty"`
}

// Initialize builds the ordered field list for a node being opened in the
// editor: one content field when content (or legacy richInfo) is non-empty,
// one media field when media is non-empty, one options field when options is
// non-empty. A node with none of these gets a single empty content field,
// so the result is never empty.
func Initialize(node *schema.Node) []Field {
	var out []Field

	if node != nil {
		content := node.Content
		if content == "" {
			content = node.RichInfo
		}
		if content != "" {
			out = append(out, Field{ID: newFieldID(), Type: TypeContent, Content: content})
		}
		if len(node.Media) > 0 {
			media := make([]schema.MediaItem, len(node.Media))
			copy(media, node.Media)
			out = append(out, Field{ID: newFieldID(), Type: TypeMedia, Media: media})
		}
		if len(node.Options) > 0 {
			options := make([]string, len(node.Options))
			copy(options, node.Options)
			out = append(out, Field{ID: newFieldID(), Type: TypeOptions, Options: options})
		}
	}

	if len(out) == 0 {
		out = append(out, Field{ID: newFieldID(), Type: TypeContent})
	}
	return out
}

// Add appends a new empty field of the requested type.
func Add(list []Field, typ FieldType) []Field {
	return append(list, Field{ID: newFieldID(), Type: typ})
}

// Remove deletes the field with the given ID. The result may be empty;
// ValidateNode catches that before apply.
func Remove(list []Field, id string) []Field {
	out := make([]Field, 0, len(list))
	for _, f := range list {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}

// Move reorders the list by extracting the element at from and reinserting
// it at to. Out-of-range indexes leave the list unchanged.
func Move(list []Field, from, to int) []Field {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) || from == to {
		return list
	}
	out := make([]Field, 0, len(list))
	out = append(out, list[:from]...)
	out = append(out, list[from+1:]...)
	out = append(out[:to], append([]Field{list[from]}, out[to:]...)...)
	return out
}

// Combine folds the field list into the node's persisted shape:
//   - content fields are joined with a blank line, in list order
//   - media fields are concatenated in order; items missing a type
//     default to image
//   - each non-empty options field replaces the accumulator (last writer
//     wins, never merged), with blank option strings dropped
func Combine(list []Field) NodeData {
	var (
		contents []string
		media    []schema.MediaItem
		options  []string
	)

	for _, f := range list {
		switch f.Type {
		case TypeContent:
			if strings.TrimSpace(f.Content) != "" {
				contents = append(contents, f.Content)
			}
		case TypeMedia:
			for _, m := range f.Media {
				if m.Type == "" {
					m.Type = schema.MediaTypeImage
				}
				media = append(media, m)
			}
		case TypeOptions:
			filtered := make([]string, 0, len(f.Options))
			for _, o := range f.Options {
				if strings.TrimSpace(o) != "" {
					filtered = append(filtered, o)
				}
			}
			if len(filtered) > 0 {
				options = filtered
			}
		}
	}

	return NodeData{
		Content: strings.Join(contents, "\n\n"),
		Media:   media,
		Options: options,
	}
}

// Apply writes combined field data back onto the node. The legacy richInfo
// value is cleared: once a node has been re-saved through the composer its
// content lives in Content.
func Apply(node *schema.Node, list []Field) {
	data := Combine(list)
	node.Content = data.Content
	node.Media = data.Media
	node.Options = data.Options
	node.RichInfo = ""
}

func newFieldID() string {
	return uuid.New().String()
}
