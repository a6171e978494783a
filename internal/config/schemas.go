package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/sheet-sync/internal/store"
	"github.com/ginjaninja78/sheet-sync/internal/types"
	"github.com/ginjaninja78/sheet-sync/internal/xlsxparser"
)

// =============================================================================
// TABLE SCHEMAS
// =============================================================================

// LoadSchemas loads every table schema in dir, keyed by table name.
//
// Two formats are read:
//   - *.yaml / *.yml: one TableSchema per file
//   - *.xlsx: a schema template workbook, one table per worksheet
//
// PARAMETERS:
//   - dir: The schema directory. A missing directory yields no schemas.
//
// RETURNS:
//   - The schemas by table.
//   - An error if a file cannot be parsed, a schema is invalid, or two files
//     define the same table.
func LoadSchemas(dir string) (map[string]*types.TableSchema, error) {
	schemas := make(map[string]*types.TableSchema)
	sources := make(map[string]string)

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return schemas, nil
	}

	add := func(schema *types.TableSchema, file string) error {
		if err := ValidateSchema(schema); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if prev, dup := sources[schema.Table]; dup {
			return fmt.Errorf("table %q defined in both %s and %s", schema.Table, prev, file)
		}
		schemas[schema.Table] = schema
		sources[schema.Table] = file
		return nil
	}

	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		schema, err := loadSchemaYAML(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if err := add(schema, file); err != nil {
			return nil, err
		}
	}

	templates, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("failed to list schema templates: %w", err)
	}
	sort.Strings(templates)
	for _, file := range templates {
		// Excel lock files
		if strings.HasPrefix(filepath.Base(file), "~$") {
			continue
		}
		parsed, err := xlsxparser.ParseTemplate(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		for _, schema := range parsed {
			if err := add(schema, file); err != nil {
				return nil, err
			}
		}
	}

	return schemas, nil
}

func loadSchemaYAML(path string) (*types.TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var schema types.TableSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if schema.Table == "" {
		schema.Table = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i := range schema.Fields {
		if schema.Fields[i].Type == "" {
			schema.Fields[i].Type = types.TypeText
		}
	}
	return &schema, nil
}

// ValidateSchema checks table and field identifiers and the content key.
func ValidateSchema(schema *types.TableSchema) error {
	if err := store.CheckIdentifier(schema.Table); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if len(schema.Fields) == 0 {
		return fmt.Errorf("table %s has no fields", schema.Table)
	}

	seen := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		if err := store.CheckFieldName(f.Name); err != nil {
			return fmt.Errorf("table %s: %w", schema.Table, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %s: field %q declared twice", schema.Table, f.Name)
		}
		seen[f.Name] = true
	}

	if ck := schema.ContentKey; ck != nil {
		for _, name := range []string{ck.Identifier, ck.Date, ck.Amount, ck.Label} {
			if name != "" && !seen[name] {
				return fmt.Errorf("table %s: content key field %q is not declared", schema.Table, name)
			}
		}
		if ck.Identifier == "" {
			return fmt.Errorf("table %s: content key requires an identifier field", schema.Table)
		}
	}
	return nil
}

// ValidateAll cross-checks sheet configs against the loaded schemas. Every
// problem found is returned, not just the first.
func ValidateAll(sheets []*SheetConfig, schemas map[string]*types.TableSchema) error {
	var errs []error
	for _, sheet := range sheets {
		schema, ok := schemas[sheet.Table]
		if !ok {
			if sheet.AutoMatch {
				errs = append(errs, fmt.Errorf("sheet %s: auto_match requires a schema for table %s", sheet.ID, sheet.Table))
			}
			continue
		}
		// Fields the schema does not declare are allowed and get their own
		// column; a declared field must keep the schema's type.
		for _, m := range sheet.Mappings {
			spec, ok := schema.Field(m.Field)
			if ok && m.Type != "" && spec.Type != "" && m.Type != spec.Type {
				errs = append(errs, fmt.Errorf("sheet %s: field %q is %s in the mapping but %s in table %s",
					sheet.ID, m.Field, m.Type, spec.Type, sheet.Table))
			}
		}
	}
	return errors.Join(errs...)
}
