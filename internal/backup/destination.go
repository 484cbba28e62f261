package backup

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/litesql/dbmcp/internal/dberr"
)

type Scheme string

const (
	SchemeTable Scheme = "table"
	SchemeFile  Scheme = "file"
	SchemeNATS  Scheme = "nats"
	SchemeKafka Scheme = "kafka"
	SchemeS3    Scheme = "s3"
)

// Destination is a parsed backup_table destination.
//
//	table:<name>            Target=name
//	file:<relative path>    Object=path
//	nats://<bucket>/<name>  Target=bucket Object=name
//	kafka://<topic>         Target=topic
//	s3://<bucket>/<key>     Target=bucket Object=key
type Destination struct {
	Scheme Scheme
	Target string
	Object string

	ContentType string
}

func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return Destination{}, invalidDestination(s, "expected <scheme>:<target>")
	}
	d := Destination{Scheme: Scheme(strings.ToLower(scheme))}
	switch d.Scheme {
	case SchemeTable:
		d.Target = rest
	case SchemeFile:
		p := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rest, "//")))
		if !filepath.IsLocal(p) {
			return Destination{}, invalidDestination(s, "file path must be relative and stay inside the backup directory")
		}
		d.Object = p
	case SchemeNATS, SchemeKafka, SchemeS3:
		u, err := url.Parse(s)
		if err != nil {
			return Destination{}, invalidDestination(s, err.Error())
		}
		if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
			return Destination{}, invalidDestination(s, "credentials, query and fragment are not allowed")
		}
		d.Target = u.Host
		d.Object = strings.TrimPrefix(u.Path, "/")
		if d.Target == "" {
			return Destination{}, invalidDestination(s, "missing "+targetName(d.Scheme))
		}
		if d.Scheme == SchemeKafka {
			if d.Object != "" {
				return Destination{}, invalidDestination(s, "kafka destinations name a topic only")
			}
		} else if d.Object == "" {
			return Destination{}, invalidDestination(s, "missing object name")
		}
	default:
		return Destination{}, invalidDestination(s, fmt.Sprintf("unknown scheme %q (table|file|nats|kafka|s3)", scheme))
	}
	return d, nil
}

// Check rejects format and destination pairs that cannot round-trip.
func (d Destination) Check(f Format) error {
	if d.Scheme == SchemeKafka && f != FormatJSONL {
		return dberr.Invalid("backup", "kafka destinations carry one record per row and require the jsonl format")
	}
	return nil
}

func (d Destination) String() string {
	switch d.Scheme {
	case SchemeTable:
		return "table:" + d.Target
	case SchemeFile:
		return "file:" + filepath.ToSlash(d.Object)
	case SchemeKafka:
		return "kafka://" + d.Target
	}
	return string(d.Scheme) + "://" + d.Target + "/" + d.Object
}

func targetName(s Scheme) string {
	if s == SchemeKafka {
		return "topic"
	}
	return "bucket"
}

func invalidDestination(s, reason string) error {
	return dberr.Invalid("backup", fmt.Sprintf("invalid destination %q: %s", s, reason))
}
