package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

var (
	ErrEmptyDescription = errors.New("empty pipeline description")
	ErrEmptyLink        = errors.New("link without source or destination element")
	ErrUnterminated     = engine.ErrUnterminatedQuote
)

// elementSpec is one parsed element of a launch description.
type elementSpec struct {
	factory    factory
	name       string
	properties map[string]string
}

// parseDescription splits a launch description into its linked element chain.
func parseDescription(description string) ([]elementSpec, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyDescription
	}

	segments, err := engine.SplitLinks(description)
	if err != nil {
		return nil, err
	}

	specs := make([]elementSpec, 0, len(segments))
	for i, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return nil, fmt.Errorf("%w (position %d)", ErrEmptyLink, i)
		}
		spec, err := parseSegment(segment)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseSegment(segment string) (elementSpec, error) {
	tokens, err := engine.SplitOutsideQuotes(strings.TrimSpace(segment), unicode.IsSpace)
	if err != nil {
		return elementSpec{}, err
	}
	tokens = dropEmpty(tokens)

	head := tokens[0]

	// Caps strings stand in for a capsfilter element.
	if strings.Contains(head, "/") {
		f, _ := lookupFactory("capsfilter")
		return elementSpec{
			factory:    f,
			properties: map[string]string{"caps": unquote(strings.Join(tokens, " "))},
		}, nil
	}

	f, ok := lookupFactory(head)
	if !ok {
		return elementSpec{}, fmt.Errorf("no element %q", head)
	}

	spec := elementSpec{factory: f, properties: make(map[string]string)}
	for _, tok := range tokens[1:] {
		key, value, found := strings.Cut(tok, "=")
		if !found || key == "" {
			if strings.HasSuffix(tok, ".") {
				return elementSpec{}, fmt.Errorf("named element references are not supported: %q", tok)
			}
			return elementSpec{}, fmt.Errorf("unexpected token %q after element %q", tok, head)
		}
		value = unquote(value)
		if err := checkProperty(f, key, value); err != nil {
			return elementSpec{}, err
		}
		if key == "name" {
			spec.name = value
			continue
		}
		spec.properties[key] = value
	}
	return spec, nil
}

// checkProperty rejects values the engine could not convert for well-known properties.
func checkProperty(f factory, key, value string) error {
	switch key {
	case "num-buffers":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("could not set property %q in element %q to %q", key, f.name, value)
		}
	case "is-live", "sync", "async":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("could not set property %q in element %q to %q", key, f.name, value)
		}
	case "name":
		if value == "" {
			return fmt.Errorf("empty name for element %q", f.name)
		}
	}
	return nil
}

func dropEmpty(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
