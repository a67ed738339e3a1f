package domain

import "strings"

// Document is one retrievable unit of the corpus, usually a chunk of a
// longer source. It is owned by the document store and never mutated.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

const (
	MetadataSource     = "source"
	MetadataChunkIndex = "chunk_index"
	MetadataTitle      = "title"
)

// Clone returns a copy that does not share the metadata map.
func (d Document) Clone() Document {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (d Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return WrapError(ErrInvalidInput, "validate document", errEmptyDocumentID)
	}
	if strings.TrimSpace(d.Text) == "" {
		return WrapError(ErrInvalidInput, "validate document", errEmptyDocumentText{id: d.ID})
	}
	return nil
}

// ValidateBatch checks every document and rejects duplicate ids in one batch.
func ValidateBatch(docs []Document) error {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return err
		}
		if _, ok := seen[doc.ID]; ok {
			return WrapError(ErrInvalidInput, "validate documents", errDuplicateDocumentID{id: doc.ID})
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}
