package binder

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/litesql/dbmcp/internal/dberr"
)

type StatementKind int

const (
	KindRead StatementKind = iota
	KindWrite
	KindDDL
)

func (k StatementKind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindDDL:
		return "ddl"
	}
	return "read"
}

var statementKinds = map[string]StatementKind{
	"SELECT":   KindRead,
	"WITH":     KindRead,
	"VALUES":   KindRead,
	"TABLE":    KindRead,
	"SHOW":     KindRead,
	"EXPLAIN":  KindRead,
	"DESCRIBE": KindRead,
	"DESC":     KindRead,
	"PRAGMA":   KindRead,

	"INSERT":  KindWrite,
	"UPDATE":  KindWrite,
	"DELETE":  KindWrite,
	"MERGE":   KindWrite,
	"REPLACE": KindWrite,
	"UPSERT":  KindWrite,
	"CALL":    KindWrite,
	"EXEC":    KindWrite,
	"EXECUTE": KindWrite,

	"CREATE":   KindDDL,
	"DROP":     KindDDL,
	"ALTER":    KindDDL,
	"TRUNCATE": KindDDL,
	"RENAME":   KindDDL,
	"COMMENT":  KindDDL,
	"GRANT":    KindDDL,
	"REVOKE":   KindDDL,
}

// Session and transaction control would leak state into the next borrower
// of the pooled connection or break the executor's transaction boundaries.
var rejectedKeywords = map[string]bool{
	"BEGIN": true, "START": true, "COMMIT": true, "ROLLBACK": true, "END": true,
	"SAVEPOINT": true, "RELEASE": true, "SET": true, "USE": true, "RESET": true,
	"ATTACH": true, "DETACH": true, "LOCK": true, "UNLOCK": true, "DISCARD": true,
}

// ClassifyStatement decides how execute_query runs stmt from its leading
// keyword. It is not a parser: comments and parentheses before the keyword
// are skipped and the rest of the text goes to the engine unchanged, so text
// holding more than one statement is rejected.
func ClassifyStatement(stmt string) (StatementKind, error) {
	kw := leadingKeyword(stmt)
	if kw == "" {
		return 0, dberr.Invalid("execute_query", "statement is empty")
	}
	if rejectedKeywords[kw] {
		return 0, dberr.Invalid("execute_query", fmt.Sprintf("%s statements are not allowed; every write already runs in its own transaction", kw))
	}
	semicolon, assigns := scanCode(stmt)
	if semicolon >= 0 && strings.TrimSpace(skipComments(stmt[semicolon+1:])) != "" {
		return 0, dberr.Invalid("execute_query", "only one statement per call is allowed")
	}
	if kw == "PRAGMA" && !readOnlyPragma(stmt, assigns) {
		return 0, dberr.Invalid("execute_query", "PRAGMA statements that change settings are not allowed")
	}
	kind, ok := statementKinds[kw]
	if !ok {
		return 0, dberr.Invalid("execute_query", fmt.Sprintf("unsupported statement %s", kw))
	}
	return kind, nil
}

// Pragmas that take an argument and only report.
var queryPragmas = map[string]bool{
	"TABLE_INFO": true, "TABLE_XINFO": true, "TABLE_LIST": true,
	"INDEX_LIST": true, "INDEX_INFO": true, "INDEX_XINFO": true,
	"FOREIGN_KEY_LIST": true, "FOREIGN_KEY_CHECK": true,
	"INTEGRITY_CHECK": true, "QUICK_CHECK": true,
}

// readOnlyPragma accepts `PRAGMA name` (reads the setting) and the query
// pragmas. An assignment or a call of any other pragma changes the session.
func readOnlyPragma(stmt string, assigns bool) bool {
	if assigns {
		return false
	}
	rest := strings.TrimSpace(skipComments(stmt))
	rest = strings.TrimSpace(rest[len("PRAGMA"):])
	name, _, hasArg := strings.Cut(rest, "(")
	if !hasArg {
		return true
	}
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return queryPragmas[strings.ToUpper(name)]
}

// scanCode walks stmt outside string literals, quoted identifiers and
// comments. It returns the offset of the first ';' (-1 when there is none)
// and whether an '=' appears before it.
func scanCode(stmt string) (semicolon int, assigns bool) {
	for i := 0; i < len(stmt); i++ {
		switch c := stmt[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = closing(stmt, i+1, string(c))
		case c == '[':
			i = closing(stmt, i+1, "]")
		case strings.HasPrefix(stmt[i:], "--"):
			i = closing(stmt, i+2, "\n")
		case strings.HasPrefix(stmt[i:], "/*"):
			i = closing(stmt, i+2, "*/")
		case c == '$':
			if tag := dollarTag(stmt[i:]); tag != "" {
				i = closing(stmt, i+len(tag), tag)
			}
		case c == '=':
			assigns = true
		case c == ';':
			return i, assigns
		}
	}
	return -1, assigns
}

// closing returns the offset of the last byte of the first end found at or
// after from, or len(s) when the literal is not terminated. A doubled quote
// inside a literal is an escaped quote and is skipped by the next call.
func closing(s string, from int, end string) int {
	j := strings.Index(s[from:], end)
	if j < 0 {
		return len(s)
	}
	return from + j + len(end) - 1
}

// dollarTag returns the opening tag of a PostgreSQL dollar-quoted string
// ($$ or $name$) at the start of s.
func dollarTag(s string) string {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1]
		}
		if !(c == '_' || unicode.IsLetter(rune(c)) || (j > 1 && unicode.IsDigit(rune(c)))) {
			return ""
		}
	}
	return ""
}

func skipComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}

// HasReturning reports whether a write statement produces rows.
func HasReturning(stmt string) bool {
	for _, w := range strings.FieldsFunc(strings.ToUpper(stmt), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	}) {
		if w == "RETURNING" {
			return true
		}
	}
	return false
}

// TrimStatement drops surrounding space and one trailing semicolon.
func TrimStatement(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSuffix(stmt, ";")
	return strings.TrimSpace(stmt)
}

func leadingKeyword(stmt string) string {
	s := stmt
	for {
		s = skipComments(s)
		if !strings.HasPrefix(s, "(") {
			break
		}
		s = s[1:]
	}
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}
