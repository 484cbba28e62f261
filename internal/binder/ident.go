// Package binder turns tool arguments into parameterized statements. Values
// always travel as driver parameters; identifiers are either checked against
// the engine catalog (existing names) or a strict syntax (new names), then
// quoted.
package binder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/litesql/dbmcp/internal/dberr"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdent checks the syntax of a caller supplied name that does not
// have to exist yet.
func ValidateIdent(what, name string) error {
	if name == "" {
		return dberr.Invalid("identifier", what+" name is required")
	}
	if !identRE.MatchString(name) {
		return dberr.Invalid("identifier", fmt.Sprintf("invalid %s name %q: use letters, digits and underscores, starting with a letter or underscore (max 63)", what, name))
	}
	return nil
}

// ValidateSchema accepts an empty schema (engine default) or a valid name.
func ValidateSchema(schema string) error {
	if schema == "" {
		return nil
	}
	return ValidateIdent("schema", schema)
}

var typeRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(?: [A-Za-z][A-Za-z0-9_]*){0,3}(?: ?\( *(?:[0-9]+|max|MAX) *(?:, *[0-9]+ *)?\))?(?: [A-Za-z][A-Za-z0-9_]*){0,3}(?:\[\])?$`)

var typeDenyWords = map[string]bool{
	"primary": true, "key": true, "references": true, "default": true, "check": true,
	"constraint": true, "not": true, "null": true, "unique": true, "collate": true,
	"generated": true, "as": true, "on": true, "foreign": true, "autoincrement": true,
}

// ValidateType checks a column type used by create_table. Types are written
// to the statement unquoted, so only words, a precision/scale suffix and an
// array marker are accepted.
func ValidateType(typ string) error {
	if len(typ) > 64 || !typeRE.MatchString(typ) {
		return dberr.Invalid("identifier", fmt.Sprintf("invalid column type %q", typ))
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(typ), func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == ',' || r == '[' || r == ']'
	}) {
		if typeDenyWords[w] {
			return dberr.Invalid("identifier", fmt.Sprintf("invalid column type %q: %q is a constraint keyword", typ, w))
		}
	}
	return nil
}
