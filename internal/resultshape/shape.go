package resultshape

import (
	"encoding/json"
	"fmt"
)

// DescriptorKind enumerates the output descriptor shapes of spec 4.8.
type DescriptorKind string

const (
	KindString       DescriptorKind = "string"
	KindNumber       DescriptorKind = "number"
	KindBoolean      DescriptorKind = "boolean"
	KindDate         DescriptorKind = "date"
	KindImage        DescriptorKind = "image"
	KindAudio        DescriptorKind = "audio"
	KindResource     DescriptorKind = "resource"
	KindResourceLink DescriptorKind = "resource_link"
	KindSchema       DescriptorKind = "schema" // arbitrary JSON Schema object
)

// Descriptor is one element of a tool's declared OutputSchema (spec 3/4.8):
// either a primitive/media kind or an arbitrary JSON Schema object.
type Descriptor struct {
	Kind   DescriptorKind
	Schema map[string]any // only set when Kind == KindSchema
}

func primitive(k DescriptorKind) bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindDate:
		return true
	}
	return false
}

func media(k DescriptorKind) bool {
	switch k {
	case KindImage, KindAudio, KindResource, KindResourceLink:
		return true
	}
	return false
}

// ContentBlock is one MCP content block emitted to the client, mirroring
// github.com/mark3labs/mcp-go/mcp's TextContent/ImageContent/... shapes.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Output is the synthesized {content, structuredContent?} pair of spec 4.8.
type Output struct {
	Content          []ContentBlock
	StructuredContent any
}

// Shape synthesizes an Output from a tool's declared descriptors and its
// raw return value, per spec 4.8.
func Shape(descriptors []Descriptor, raw any) Output {
	if len(descriptors) == 1 {
		return shapeOne(descriptors[0], raw)
	}
	raws, _ := raw.([]any)
	return shapeTuple(descriptors, raws)
}

func shapeOne(d Descriptor, raw any) Output {
	switch {
	case primitive(d.Kind):
		return shapePrimitive(d.Kind, raw)
	case media(d.Kind):
		blocks := shapeMedia(d.Kind, raw)
		return Output{Content: blocks}
	case d.Kind == KindSchema:
		return shapeSchema(d.Schema, raw)
	default:
		return shapeSchema(nil, raw)
	}
}

func shapePrimitive(kind DescriptorKind, raw any) Output {
	text := fmt.Sprintf("%v", raw)
	out := Output{Content: []ContentBlock{{Type: "text", Text: text}}}
	if kind != KindString {
		out.StructuredContent = map[string]any{"content": raw}
	}
	return out
}

// mediaPayload is the minimal shape a media descriptor's raw value must
// satisfy; malformed payloads are rejected silently (spec 4.8: "emit
// empty").
type mediaPayload struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	URI      string `json:"uri"`
}

func shapeMedia(kind DescriptorKind, raw any) []ContentBlock {
	payload, ok := coerceMediaPayload(raw)
	if !ok {
		return nil // malformed payload rejected silently
	}
	block := ContentBlock{Type: string(kind), MIMEType: payload.MIMEType}
	switch kind {
	case KindImage, KindAudio:
		if payload.Data == "" {
			return nil
		}
		block.Data = payload.Data
	case KindResource, KindResourceLink:
		if payload.URI == "" {
			return nil
		}
		block.URI = payload.URI
	}
	return []ContentBlock{block}
}

func coerceMediaPayload(raw any) (mediaPayload, bool) {
	b, err := json.Marshal(raw)
	if err != nil {
		return mediaPayload{}, false
	}
	var p mediaPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return mediaPayload{}, false
	}
	if p.Data == "" && p.URI == "" {
		return mediaPayload{}, false
	}
	return p, true
}

func shapeSchema(schema map[string]any, raw any) Output {
	parsed := parseAgainstSchema(schema, raw)
	b, err := json.Marshal(parsed)
	text := ""
	if err == nil {
		text = string(b)
	}
	return Output{
		Content:           []ContentBlock{{Type: "text", Text: text}},
		StructuredContent: Sanitize(parsed),
	}
}

// parseAgainstSchema best-effort validates/coerces raw against schema,
// falling back to the raw value on failure (spec 4.8 "Schema descriptors
// parse the raw value against the schema (best-effort fallback to the raw
// value on failure)"). A full JSON-Schema validator is out of scope; this
// performs the structural round-trip the schema-descriptor law in spec 8
// requires: parse(shape(raw)) == parse(raw).
func parseAgainstSchema(schema map[string]any, raw any) any {
	if schema == nil {
		return raw
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return raw
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return raw
	}
	return out
}

func shapeTuple(descriptors []Descriptor, raws []any) Output {
	hasNonPrimitive := false
	for i, d := range descriptors {
		if i >= len(raws) {
			break
		}
		if !primitive(d.Kind) {
			hasNonPrimitive = true
		}
	}

	var blocks []ContentBlock
	structured := make(map[string]any)
	for i, d := range descriptors {
		var raw any
		if i < len(raws) {
			raw = raws[i]
		}
		one := shapeOne(d, raw)
		blocks = append(blocks, one.Content...)
		if len(descriptors) > 1 && hasNonPrimitive {
			// numeric-index keys when at least one element is
			// non-primitive and there are multiple items (spec 4.8).
			structured[fmt.Sprintf("%d", i)] = valueFor(d, one, raw)
		}
	}

	out := Output{Content: blocks}
	if len(descriptors) > 1 && hasNonPrimitive {
		out.StructuredContent = Sanitize(structured)
	}
	return out
}

func valueFor(d Descriptor, one Output, raw any) any {
	if primitive(d.Kind) {
		return raw
	}
	if one.StructuredContent != nil {
		return one.StructuredContent
	}
	return raw
}
