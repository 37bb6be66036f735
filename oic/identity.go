package oic

import (
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// AuthenticatedAuthority is the implicit authority granted to every
// successfully authenticated identity.
const AuthenticatedAuthority = "authenticated"

// ExtractedIdentity is the local identity resolved from an ID token
// claim set and an optional userinfo document.
type ExtractedIdentity struct {
	Username  string
	Email     string
	FullName  string
	AvatarURL string

	// Authorities is the granted group set. It always starts with
	// AuthenticatedAuthority.
	Authorities []string
}

// HasAuthority reports whether the identity carries the named authority.
func (id *ExtractedIdentity) HasAuthority(name string) bool {
	for _, a := range id.Authorities {
		if a == name {
			return true
		}
	}
	return false
}

// resolveStringField resolves a scalar field with userinfo taking
// precedence over the ID token claim set. Values that parse as
// absolute URIs are canonicalized; blank values are treated as absent.
func resolveStringField(path *FieldPath, claims, userInfo map[string]interface{}) string {
	if path == nil {
		return ""
	}
	if userInfo != nil {
		if v := fixupStringValue(path.Search(userInfo)); v != "" {
			return v
		}
	}
	if claims != nil {
		if v := fixupStringValue(path.Search(claims)); v != "" {
			return v
		}
	}
	return ""
}

func fixupStringValue(value interface{}) string {
	s, ok := scalarString(value)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// some providers hand back URI-typed fields such as "picture"
	if u, err := url.Parse(s); err == nil && u.IsAbs() {
		return u.String()
	}
	return s
}

// groupSplitChars separate group names when a provider serializes an
// array as a single bracketed comma string, e.g. "[admins, devs]".
const groupSplitChars = " \t\n[],"

// extractGroups resolves the granted group names, evaluating userinfo
// first and falling back to the ID token claims. A string value is
// split into names; a list yields its string elements, or projects
// nestedField out of object elements. Any other shape logs a warning
// and yields no groups.
func extractGroups(path *FieldPath, nestedField string, claims, userInfo map[string]interface{}, logger hclog.Logger) []string {
	if path == nil {
		return nil
	}
	var raw interface{}
	if userInfo != nil {
		raw = path.Search(userInfo)
	}
	if raw == nil && claims != nil {
		raw = path.Search(claims)
	}
	if raw == nil {
		logger.Warn("id token and userinfo did not contain the groups field", "expression", path.Source())
		return nil
	}

	var groups []string
	switch value := raw.(type) {
	case string:
		for _, name := range strings.FieldsFunc(value, func(r rune) bool {
			return strings.ContainsRune(groupSplitChars, r)
		}) {
			groups = append(groups, name)
		}
	case []interface{}:
		for _, elem := range value {
			switch e := elem.(type) {
			case string:
				groups = append(groups, e)
			case map[string]interface{}:
				if nestedField == "" {
					continue
				}
				if name, ok := e[nestedField].(string); ok {
					groups = append(groups, name)
				}
			}
		}
	default:
		logger.Warn("groups field has an unusable shape", "expression", path.Source(), "value", raw)
		return nil
	}
	if len(groups) == 0 {
		logger.Warn("could not identify any group names", "expression", path.Source(), "value", raw)
	}
	return groups
}
