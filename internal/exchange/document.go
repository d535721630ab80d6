// Package exchange reads and writes portable profile state documents.
package exchange

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Version is the document format written by Export.
const Version = 1

const schemaURL = "https://lullaby.local/schema/profile-state.json"

// ErrInvalidDocument wraps every decode and validation failure.
var ErrInvalidDocument = errors.New("invalid profile state document")

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Document is the serialized form of one profile's action state.
type Document struct {
	Version    int               `json:"version"`
	ProfileID  string            `json:"profile_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Active     []action.Snapshot `json:"active"`
	History    []action.Snapshot `json:"history"`
}

// Export builds a document from a profile state.
func Export(profileID string, state action.ProfileState, now time.Time) Document {
	doc := Document{
		Version:    Version,
		ProfileID:  profileID,
		ExportedAt: now.UTC(),
		Active:     []action.Snapshot{},
		History:    []action.Snapshot{},
	}
	for _, c := range action.Categories {
		if s, ok := state.Active[c]; ok {
			doc.Active = append(doc.Active, s.Clone())
		}
	}
	for _, s := range state.History {
		doc.History = append(doc.History, s.Clone())
	}
	return doc
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return nil
}

// Decode reads and validates a document.
func Decode(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("reading document: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return Document{}, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// State converts the document into a profile state. Every action is
// attributed to the document's profile.
func (d Document) State() action.ProfileState {
	list := make([]action.Snapshot, 0, len(d.Active)+len(d.History))
	for _, s := range d.Active {
		s.ProfileID = d.ProfileID
		list = append(list, s)
	}
	for _, s := range d.History {
		s.ProfileID = d.ProfileID
		list = append(list, s)
	}
	return action.FromSnapshots(list)
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parsing document schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("adding document schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}
