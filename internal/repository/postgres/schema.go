package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed schema.sql
var schemaDDL string

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SchemaDDL renders the table definitions for schema.
func SchemaDDL(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = defaultSchema
	}
	if !schemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return strings.ReplaceAll(schemaDDL, "{{schema}}", schema), nil
}

// EnsureSchema creates the schema, tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, exec pgExecutor, schema string) error {
	ddl, err := SchemaDDL(schema)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, ddl); err != nil {
		return translate("ensure schema", err)
	}
	return nil
}
