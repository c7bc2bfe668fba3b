package agent

import (
	"github.com/veskora/screenpilot/api/schemas"
)

// StaticText is the default TextProvider: it types the same configured
// string into every input element.
type StaticText struct {
	Value string
}

var _ TextProvider = StaticText{}

// TextFor returns the configured value regardless of the element.
func (s StaticText) TextFor(schemas.Element) string {
	return s.Value
}
