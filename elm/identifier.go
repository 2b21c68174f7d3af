package elm

import "strings"

// VersionedIdentifier identifies a compiled library.
type VersionedIdentifier struct {
	System  string `json:"system,omitempty"`
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// String returns "id" or "id|version", prefixed with "system/" when a
// namespace is present.
func (v VersionedIdentifier) String() string {
	var sb strings.Builder
	if v.System != "" {
		sb.WriteString(v.System)
		sb.WriteByte('/')
	}
	sb.WriteString(v.ID)
	if v.Version != "" {
		sb.WriteByte('|')
		sb.WriteString(v.Version)
	}
	return sb.String()
}

// IsZero reports whether v has no id.
func (v VersionedIdentifier) IsZero() bool {
	return v.ID == ""
}

// Matches reports whether v identifies the same library as other. An empty
// version on either side matches any version.
func (v VersionedIdentifier) Matches(other VersionedIdentifier) bool {
	if v.ID != other.ID || v.System != other.System {
		return false
	}
	return v.Version == "" || other.Version == "" || v.Version == other.Version
}

// IdentifierFromPath builds an identifier from an include path of the form
// "<namespace uri>/<name>" or "<name>".
func IdentifierFromPath(path, version string) VersionedIdentifier {
	id := VersionedIdentifier{ID: path, Version: version}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		id.System = path[:i]
		id.ID = path[i+1:]
	}
	return id
}

// QName is a namespace-qualified type name, e.g. {http://hl7.org/fhir}Patient.
type QName struct {
	Namespace string `json:"namespace,omitempty"`
	Local     string `json:"local"`
}

// ParseQName parses "{namespace}local" or a bare local name.
func ParseQName(s string) QName {
	if strings.HasPrefix(s, "{") {
		if i := strings.IndexByte(s, '}'); i > 0 {
			return QName{Namespace: s[1:i], Local: s[i+1:]}
		}
	}
	return QName{Local: s}
}

// IsZero reports whether q is empty.
func (q QName) IsZero() bool {
	return q.Local == "" && q.Namespace == ""
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}
