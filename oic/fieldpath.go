package oic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// FieldPath is a compiled field path expression: a query over a nested
// claims or userinfo document. Paths are dotted identifiers with
// optional double-quoting for keys containing dots, an optional [n]
// index into lists, and an optional [] projection across list elements:
//
//	sub
//	realm_access.roles
//	"cognito:groups"
//	groups[].name
//	contacts[0].email
//
// Compiled paths are derived state: the durable configuration is the
// source string, recompiled whenever its setter runs.
type FieldPath struct {
	src      string
	segments []pathSegment
}

type pathSegment struct {
	key      string
	index    int
	hasIndex bool
	project  bool
}

// CompileFieldPath compiles expr. Compilation never fails to the
// caller: a syntactically invalid expression logs a warning against
// logComment and yields nil, so a misconfigured realm degrades to
// "field not found" rather than refusing logins. An empty expression
// also yields nil, silently.
func CompileFieldPath(expr string, logger hclog.Logger, logComment string) *FieldPath {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	segments, err := parseFieldPath(expr)
	if err != nil {
		if logComment != "" {
			logger.Warn("invalid field path expression", "field", logComment, "expression", expr, "error", err)
		}
		return nil
	}
	return &FieldPath{src: expr, segments: segments}
}

// Source returns the expression the path was compiled from.
func (p *FieldPath) Source() string {
	if p == nil {
		return ""
	}
	return p.src
}

func parseFieldPath(expr string) ([]pathSegment, error) {
	var segments []pathSegment
	rest := expr
	for {
		seg, remaining, err := parseSegment(rest)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
		if remaining == "" {
			return segments, nil
		}
		if remaining[0] != '.' {
			return nil, fmt.Errorf("unexpected %q", remaining[0])
		}
		rest = remaining[1:]
		if rest == "" {
			return nil, fmt.Errorf("trailing dot")
		}
	}
}

func parseSegment(s string) (pathSegment, string, error) {
	var seg pathSegment

	// key, quoted or bare
	if strings.HasPrefix(s, `"`) {
		end := strings.Index(s[1:], `"`)
		if end < 0 {
			return seg, "", fmt.Errorf("unterminated quoted key")
		}
		seg.key = s[1 : end+1]
		s = s[end+2:]
	} else {
		end := strings.IndexAny(s, `.["]`)
		if end < 0 {
			end = len(s)
		}
		seg.key = s[:end]
		s = s[end:]
	}
	if seg.key == "" {
		return seg, "", fmt.Errorf("empty key")
	}

	// optional [] projection or [n] index
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return seg, "", fmt.Errorf("unterminated bracket")
		}
		inner := s[1:end]
		s = s[end+1:]
		if inner == "" {
			seg.project = true
		} else {
			idx, err := strconv.Atoi(inner)
			if err != nil || idx < 0 {
				return seg, "", fmt.Errorf("invalid index %q", inner)
			}
			seg.index = idx
			seg.hasIndex = true
		}
	}
	return seg, s, nil
}

// Search evaluates the path against a string-keyed nested document of
// maps, lists and scalars. It returns a scalar, a list, or nil when the
// path selects nothing.
func (p *FieldPath) Search(doc interface{}) interface{} {
	if p == nil || doc == nil {
		return nil
	}
	return evalSegments(p.segments, doc)
}

func evalSegments(segments []pathSegment, value interface{}) interface{} {
	for i, seg := range segments {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value, ok = m[seg.key]
		if !ok || value == nil {
			return nil
		}
		switch {
		case seg.hasIndex:
			list, ok := value.([]interface{})
			if !ok || seg.index >= len(list) {
				return nil
			}
			value = list[seg.index]
		case seg.project:
			list, ok := value.([]interface{})
			if !ok {
				return nil
			}
			var projected []interface{}
			for _, elem := range list {
				var v interface{}
				if rest := segments[i+1:]; len(rest) > 0 {
					v = evalSegments(rest, elem)
				} else {
					v = elem
				}
				if v != nil {
					projected = append(projected, v)
				}
			}
			if projected == nil {
				return nil
			}
			return projected
		}
	}
	return value
}

// scalarString renders a scalar search result as a string. Maps and
// lists are not scalars and yield false.
func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case map[string]interface{}, []interface{}:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
