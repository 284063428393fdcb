package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/shared/utils"
)

// Validate parses description without registering it and returns the element names it
// references in link order. Whatever the engine built is released before returning.
func (m *Manager) Validate(ctx context.Context, description string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := engine.Initialize(m.engine); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	el, err := m.parse(description)
	if err != nil {
		return nil, err
	}
	_ = el.Close()

	return ElementNames(description), nil
}

// parse bounds the description and hands it to the engine.
func (m *Manager) parse(description string) (engine.Element, error) {
	if err := utils.ValidateDescription(description); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	el, err := m.engine.Parse(description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return el, nil
}

// ElementNames splits a launch description on links and keeps the first word of each
// segment with any property assignment stripped. A description with an open quote
// yields no names.
func ElementNames(description string) []string {
	segments, err := engine.SplitLinks(description)
	if err != nil {
		return nil
	}
	var names []string
	for _, segment := range segments {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		name, _, _ := strings.Cut(fields[0], "=")
		// Caps strings keep only their media type.
		if strings.Contains(name, "/") {
			name, _, _ = strings.Cut(name, ",")
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
