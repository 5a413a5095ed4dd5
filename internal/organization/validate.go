package organization

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/akabaki/saas-ui/internal/models"
)

//go:embed organization.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ErrValidation is wrapped by every input validation failure.
var ErrValidation = errors.New("invalid organization")

// ValidationError lists the problems found in an OrganizationInput.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("organization.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("organization.schema.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks in against the organization schema.
func Validate(in models.OrganizationInput) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal input: %w", err)
	}

	err = s.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return &ValidationError{Problems: problems(ve)}
}

// problems flattens a schema error into "field: message" lines.
func problems(ve *jsonschema.ValidationError) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		field := strings.TrimPrefix(e.InstanceLocation, "/")
		if field == "" {
			field = "organization"
		}
		msg := field + ": " + e.Error
		if _, ok := seen[msg]; ok {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	sort.Strings(out)
	return out
}

// normalize trims every field before validation and storage.
func normalize(in models.OrganizationInput) models.OrganizationInput {
	return models.OrganizationInput{
		Name:          strings.TrimSpace(in.Name),
		Email:         strings.TrimSpace(in.Email),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		Phone:         strings.TrimSpace(in.Phone),
		Description:   strings.TrimSpace(in.Description),
	}
}
