package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stackpilot/stackpilot/internal/models"
)

// ServiceSpec is the boolean-or-object variant a service may be declared
// as. A bare boolean remains equivalent to {enabled: bool} forever.
type ServiceSpec struct {
	Enabled  *bool
	Detailed *ServiceDetails
}

// ServiceDetails is the object form of a service declaration.
type ServiceDetails struct {
	Enabled        bool    `json:"enabled"`
	DockerName     *string `json:"dockerName,omitempty"`
	HealthEndpoint *string `json:"healthEndpoint,omitempty"`
	Port           *int    `json:"port,omitempty"`
}

// UnmarshalJSON accepts both declaration shapes.
func (s *ServiceSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("service entry must be a boolean or an object: %w", err)
		}
		s.Enabled = &b
		return nil
	}
	var d ServiceDetails
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return err
	}
	s.Detailed = &d
	return nil
}

// MarshalJSON writes the shape the entry was declared with.
func (s ServiceSpec) MarshalJSON() ([]byte, error) {
	if s.Detailed != nil {
		return json.Marshal(s.Detailed)
	}
	if s.Enabled != nil {
		return json.Marshal(*s.Enabled)
	}
	return json.Marshal(false)
}

// ServiceMap holds declared services keyed by canonical name, preserving
// declaration order across JSON round-trips.
type ServiceMap struct {
	order []string
	specs map[string]ServiceSpec
}

// UnmarshalJSON walks the object token by token so declaration order
// survives decoding.
func (m *ServiceMap) UnmarshalJSON(data []byte) error {
	m.specs = make(map[string]ServiceSpec)
	m.order = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("services must be an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		raw := keyTok.(string)
		var spec ServiceSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("services.%s: %w", raw, err)
		}
		canonical := ResolveServiceName(raw)
		if _, dup := m.specs[canonical]; !dup {
			m.order = append(m.order, canonical)
		}
		m.specs[canonical] = spec
	}
	return nil
}

// MarshalJSON writes entries back in declaration order.
func (m ServiceMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.specs[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns the canonical names in declaration order.
func (m ServiceMap) Names() []string {
	return append([]string(nil), m.order...)
}

// Descriptor normalizes either declaration shape into the canonical form
// downstream callers see.
func (m ServiceMap) Descriptor(name string) models.ServiceDescriptor {
	canonical := ResolveServiceName(name)
	spec := m.specs[canonical]
	desc := models.ServiceDescriptor{Name: canonical}
	switch {
	case spec.Detailed != nil:
		desc.Enabled = spec.Detailed.Enabled
		desc.DockerName = spec.Detailed.DockerName
		desc.HealthEndpoint = spec.Detailed.HealthEndpoint
		desc.Port = spec.Detailed.Port
	case spec.Enabled != nil:
		desc.Enabled = *spec.Enabled
	}
	return desc
}

var wordSeparators = regexp.MustCompile(`[\s\-.]+`)

// aliases maps shorthand identifiers to one specific canonical name.
var aliases = map[string]string{
	"worker":    "scraper_worker",
	"scraper":   "scraper_worker",
	"pdf":       "pdf_worker",
	"pdfworker": "pdf_worker",
	"email":     "email_worker",
	"mailer":    "email_worker",
}

// ResolveServiceName derives the canonical service name: lower-case, word
// separators collapsed to single underscores, then the fixed alias table.
// Total and pure; applying it twice yields the same result.
func ResolveServiceName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = wordSeparators.ReplaceAllString(name, "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "_")
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}
