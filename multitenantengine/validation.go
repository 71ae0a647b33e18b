package multitenantengine

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	maxSchemaObjects  = 100
	maxObjectFields   = 200
	maxIdentifierSize = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// fieldTypes lists the CEL type names a schema field may declare. Names are case-sensitive.
var fieldTypes = map[string]bool{
	"int":       true,
	"int64":     true,
	"uint":      true,
	"double":    true,
	"float64":   true,
	"string":    true,
	"bool":      true,
	"bytes":     true,
	"timestamp": true,
	"duration":  true,
	"list":      true,
	"map":       true,
	"dyn":       true,
}

// reservedKeywords cannot be used as object or field names. "facts" is bound by every engine.
var reservedKeywords = map[string]bool{
	"true": true, "false": true, "null": true,
	"if": true, "else": true, "for": true, "while": true,
	"break": true, "continue": true, "return": true,
	"var": true, "let": true, "const": true, "function": true,
	"in": true, "as": true, "import": true, "package": true,
	"namespace": true, "loop": true, "void": true,
	"facts": true,
}

// ValidateSchema checks a fact schema and reports every problem it finds, joined into one error
func ValidateSchema(schema Schema) error {
	if len(schema) == 0 {
		return errors.New("schema cannot be empty, must contain at least one object definition")
	}
	if len(schema) > maxSchemaObjects {
		return fmt.Errorf("schema contains %d objects, maximum allowed is %d", len(schema), maxSchemaObjects)
	}

	var errs []error
	for _, objectName := range sortedKeys(schema) {
		fields := schema[objectName]

		if err := validateIdentifier(objectName); err != nil {
			errs = append(errs, fmt.Errorf("invalid object name %q: %w", objectName, err))
		}
		if len(fields) == 0 {
			errs = append(errs, fmt.Errorf("object %q must contain at least one field", objectName))
			continue
		}
		if len(fields) > maxObjectFields {
			errs = append(errs, fmt.Errorf("object %q contains %d fields, maximum allowed is %d", objectName, len(fields), maxObjectFields))
			continue
		}

		for _, fieldName := range sortedKeys(fields) {
			if err := validateIdentifier(fieldName); err != nil {
				errs = append(errs, fmt.Errorf("invalid field name %q in object %q: %w", fieldName, objectName, err))
			}
			if err := validateFieldType(fields[fieldName]); err != nil {
				errs = append(errs, fmt.Errorf("field %q in object %q: %w", fieldName, objectName, err))
			}
		}
	}

	return errors.Join(errs...)
}

func validateIdentifier(name string) error {
	if len(name) == 0 {
		return errors.New("identifier cannot be empty")
	}
	if len(name) > maxIdentifierSize {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierSize)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s", identifierPattern)
	}
	if reservedKeywords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

func validateFieldType(typeName string) error {
	switch {
	case typeName == "":
		return errors.New("empty type name")
	case strings.TrimSpace(typeName) != typeName:
		return fmt.Errorf("type %q has leading or trailing whitespace", typeName)
	case !fieldTypes[typeName]:
		return fmt.Errorf("invalid type %q (must be one of: %s)", typeName, strings.Join(sortedKeys(fieldTypes), ", "))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
