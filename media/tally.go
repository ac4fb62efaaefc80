package media

import (
	"encoding/xml"
	"fmt"
)

// Tally is the conventional metadata document announcing program/preview
// state for a source. The transport does not interpret metadata; this
// type is a convenience for producers and consumers that speak the
// tally schema.
type Tally struct {
	XMLName   xml.Name `xml:"tally"`
	OnProgram bool     `xml:"on_program"`
	OnPreview bool     `xml:"on_preview"`
	Source    string   `xml:"source"`
}

// TallyMetadata builds a metadata frame carrying the tally document.
// Timestamp is left zero; the synchronizer stamps it on send.
func TallyMetadata(t Tally) (*MetadataFrame, error) {
	b, err := xml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("media: marshal tally: %w", err)
	}
	return &MetadataFrame{Content: string(b)}, nil
}

// ParseTally decodes a tally document from a metadata frame's content.
func ParseTally(content string) (Tally, error) {
	var t Tally
	if err := xml.Unmarshal([]byte(content), &t); err != nil {
		return Tally{}, fmt.Errorf("media: parse tally: %w", err)
	}
	return t, nil
}
