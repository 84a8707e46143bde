// Package validation checks request bodies against the JSON schemas embedded under schemas/.
package validation

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

// Schema names, one per request body shape.
const (
	CreateUser    = "create-user"
	ChangePlan    = "change-plan"
	CreateProject = "create-project"
	UpdateProject = "update-project"
	UserRef       = "user-ref"
	CreateTask    = "create-task"
	UpdateTask    = "update-task"
	SetStatus     = "set-status"
	CreateComment = "create-comment"
	UpdateComment = "update-comment"
	CreateRequest = "create-request"
	UpdateRequest = "update-request"
	DecideRequest = "decide-request"
	Preferences   = "preferences"
)

// ErrInvalid wraps every rejection, whether the body is malformed JSON or breaks its schema.
var ErrInvalid = errors.New("invalid request body")

//go:embed schemas/*.json
var schemaFiles embed.FS

var schemas = mustLoad()

func mustLoad() map[string]*gojsonschema.Schema {
	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		panic(err)
	}
	loaded := make(map[string]*gojsonschema.Schema, len(entries))
	for _, e := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			panic(err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", e.Name(), err))
		}
		loaded[strings.TrimSuffix(e.Name(), ".json")] = schema
	}
	return loaded
}

// Validate checks body against the named schema.
func Validate(name string, body []byte) error {
	schema, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: malformed JSON", ErrInvalid)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Decode reads r, validates it against the named schema and unmarshals it into v.
func Decode(r io.Reader, name string, v any) error {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body too large", ErrInvalid)
	}
	if err := Validate(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
