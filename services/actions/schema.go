package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/upb/action-gate/services"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var schemaPrinter = message.NewPrinter(language.English)

// argumentSchema validates invocation arguments for one action
type argumentSchema struct {
	schema *jsonschema.Schema
}

func compileArgumentSchema(actionName, doc string) (*argumentSchema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s parameters: %w", actionName, err)
	}

	url := "mem://actions/" + actionName + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("failed to load %s parameters: %w", actionName, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s parameters: %w", actionName, err)
	}
	return &argumentSchema{schema: schema}, nil
}

// validate checks args as they would arrive over JSON
func (s *argumentSchema) validate(args map[string]interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "arguments are not JSON encodable", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "arguments are not valid JSON", err)
	}

	if err := s.schema.Validate(instance); err != nil {
		de := services.NewDomainError(services.ErrorTypeValidation, "invalid action arguments", err)
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			de.WithDetail("errors", schemaErrors(verr))
		}
		return de
	}
	return nil
}

// schemaErrors flattens a validation error tree into "path: message" lines
func schemaErrors(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		path := "/" + strings.Join(err.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", path, err.ErrorKind.LocalizedString(schemaPrinter))}
	}

	var out []string
	for _, cause := range err.Causes {
		out = append(out, schemaErrors(cause)...)
	}
	return out
}
