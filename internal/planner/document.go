package planner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"batchcore/pkg/domain"
)

// DocumentVersion identifies the schedule document format.
const DocumentVersion = 1

// Document is the serialized hand-off between planning and execution: the
// full schedule plus partition assignments. Encoding is canonical so two
// documents produced from identical inputs are byte-identical and diffable.
type Document struct {
	Version    int                `json:"version"`
	Schedule   domain.Schedule    `json:"schedule"`
	Partitions []domain.Partition `json:"partitions"`
}

// EncodeDocument renders the document as indented canonical JSON. No
// timestamps or environment details are embedded; content depends only on
// planning inputs.
func EncodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode schedule document: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDocument parses a schedule document and rejects unknown versions.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode schedule document: %w", err)
	}
	if doc.Version != DocumentVersion {
		return Document{}, fmt.Errorf("unsupported schedule document version %d", doc.Version)
	}
	return doc, nil
}
