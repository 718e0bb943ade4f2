package hosz

import (
	"time"
)

// DocumentKind names a credential whose expiry is tracked.
type DocumentKind string

// Tracked credentials.
const (
	MedicalCertificate DocumentKind = "medical_certificate"
	License            DocumentKind = "license"
)

// Document is a credential with an expiry date. A zero ExpiresAt means the
// expiry is unknown and the document is not evaluated.
type Document struct {
	ExpiresAt time.Time    `msgpack:"expires_at" json:"expires_at"`
	Kind      DocumentKind `msgpack:"kind" json:"kind"`
	Number    string       `msgpack:"number,omitempty" json:"number,omitempty"`
}

// DocumentState is the set of credentials held by a driver.
type DocumentState struct {
	Documents []Document `msgpack:"documents" json:"documents"`
}

// Get returns the document of the given kind.
func (d DocumentState) Get(kind DocumentKind) (Document, bool) {
	for _, doc := range d.Documents {
		if doc.Kind == kind {
			return doc, true
		}
	}
	return Document{}, false
}

// With returns a copy of d with the document of the same kind replaced.
func (d DocumentState) With(doc Document) DocumentState {
	out := DocumentState{Documents: make([]Document, 0, len(d.Documents)+1)}
	replaced := false
	for _, cur := range d.Documents {
		if cur.Kind == doc.Kind {
			out.Documents = append(out.Documents, doc)
			replaced = true
			continue
		}
		out.Documents = append(out.Documents, cur)
	}
	if !replaced {
		out.Documents = append(out.Documents, doc)
	}
	return out
}

func (k DocumentKind) label() string {
	switch k {
	case MedicalCertificate:
		return "medical certificate"
	case License:
		return "license"
	default:
		return string(k)
	}
}
