package queue

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Renderer serializes a Queue to bytes.
type Renderer interface {
	Render(q *Queue) ([]byte, error)
}

// JSONRenderer renders the queue file Dolphin reads, indented by two spaces.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(q *Queue) ([]byte, error) {
	out := *q
	if out.Items == nil {
		out.Items = []Item{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// TextRenderer renders a numbered, human-readable listing.
type TextRenderer struct{}

func (r *TextRenderer) Render(q *Queue) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mode: %s\n", q.Mode)
	if len(q.Items) == 0 {
		sb.WriteString("Queue is empty.\n")
		return []byte(sb.String()), nil
	}
	fmt.Fprintf(&sb, "%d replay(s):\n", len(q.Items))
	for i, it := range q.Items {
		fmt.Fprintf(&sb, "%3d. %s", i+1, filepath.Base(it.Path))
		if it.StartFrame != nil || it.EndFrame != nil {
			fmt.Fprintf(&sb, " [%s..%s]", frameString(it.StartFrame), frameString(it.EndFrame))
		}
		fmt.Fprintf(&sb, "\n     %s\n", it.Path)
	}
	return []byte(sb.String()), nil
}

func frameString(f *int) string {
	if f == nil {
		return ""
	}
	return fmt.Sprint(*f)
}

// Parser deserializes a queue file.
type Parser interface {
	Parse(data []byte) (*Queue, error)
}

// JSONParser parses the Dolphin queue format. Missing options take their
// defaults.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Queue, error) {
	q := New()
	if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("not a valid queue file: %w", err)
	}
	for i, it := range q.Items {
		if it.Path == "" {
			return nil, fmt.Errorf("not a valid queue file: item %d has no path", i+1)
		}
	}
	if q.Mode == "" {
		q.Mode = DefaultOptions().Mode
	}
	return q, nil
}
