package dialect

import "strings"

// Family groups engine column types by the kind of value they accept.
type Family int

const (
	FamilyOther Family = iota
	FamilyInteger
	FamilyNumeric
	FamilyText
	FamilyBool
	FamilyTemporal
	FamilyBinary
	FamilyJSON
)

func (f Family) String() string {
	switch f {
	case FamilyInteger:
		return "integer"
	case FamilyNumeric:
		return "numeric"
	case FamilyText:
		return "text"
	case FamilyBool:
		return "boolean"
	case FamilyTemporal:
		return "temporal"
	case FamilyBinary:
		return "binary"
	case FamilyJSON:
		return "json"
	}
	return "other"
}

// FamilyOf classifies a catalog type name. Order matters: "interval" and
// "point" both contain "int".
func FamilyOf(typ string) Family {
	t := strings.ToLower(strings.TrimSpace(typ))
	switch {
	case t == "":
		return FamilyOther
	case strings.Contains(t, "json"):
		return FamilyJSON
	case strings.Contains(t, "point"), strings.Contains(t, "array"), strings.HasSuffix(t, "[]"):
		return FamilyOther
	case strings.Contains(t, "interval"), strings.Contains(t, "date"), strings.Contains(t, "time"), t == "year":
		return FamilyTemporal
	case strings.HasPrefix(t, "bool"), t == "bit":
		return FamilyBool
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return FamilyInteger
	case strings.Contains(t, "numeric"), strings.Contains(t, "decimal"), strings.Contains(t, "real"),
		strings.Contains(t, "double"), strings.Contains(t, "float"), strings.Contains(t, "money"),
		strings.HasPrefix(t, "number"):
		return FamilyNumeric
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "clob"),
		strings.Contains(t, "string"), t == "uuid", t == "uniqueidentifier", strings.HasPrefix(t, "enum"),
		t == "citext", t == "xml":
		return FamilyText
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "bytea", t == "raw", t == "image":
		return FamilyBinary
	}
	return FamilyOther
}
