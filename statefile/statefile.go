// Package statefile persists value host instance states as JSON documents.
// Documents are validated against an embedded JSON Schema before decoding.
package statefile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/timzifer/valuehosts/valuehost"
)

// Version is the document version written by this package.
const Version = 1

//go:embed schema.json
var schemaJSON []byte

// Document is the persisted form.
type Document struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"savedAt"`
	States  []*valuehost.InstanceState `json:"states"`
}

// ValidationError reports where a document violates the schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" || e.Path == "/" {
		return "invalid state file: " + e.Message
	}
	return fmt.Sprintf("invalid state file at %s: %s", e.Path, e.Message)
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	schemaValue, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("statefile.json", schemaValue); err != nil {
		return nil, fmt.Errorf("failed to add state schema resource: %w", err)
	}
	return compiler.Compile("statefile.json")
})

// Validate checks data against the state file schema.
func Validate(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return ValidationError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := schema.Validate(instance); err != nil {
		return convertError(err)
	}
	return nil
}

func convertError(err error) error {
	if validationErr, ok := err.(*jsonschema.ValidationError); ok {
		return ValidationError{
			Path:    "/" + strings.Join(validationErr.InstanceLocation, "/"),
			Message: validationErr.Error(),
		}
	}
	return ValidationError{Message: err.Error()}
}

// Write encodes states as a versioned document.
func Write(w io.Writer, states []*valuehost.InstanceState) error {
	if states == nil {
		states = []*valuehost.InstanceState{}
	}
	doc := Document{Version: Version, SavedAt: time.Now().UTC(), States: states}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode states: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write states: %w", err)
	}
	return nil
}

// Read decodes a document written by Write.
func Read(r io.Reader) ([]*valuehost.InstanceState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read states: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode states: %w", err)
	}
	return doc.States, nil
}

// Load reads the state file at path. A missing file yields no states.
func Load(path string) ([]*valuehost.InstanceState, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Save replaces the state file at path atomically.
func Save(path string, states []*valuehost.InstanceState) error {
	var buf bytes.Buffer
	if err := Write(&buf, states); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
