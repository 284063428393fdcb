package mcp

import (
	"fmt"
	"slices"
	"strings"
)

// Mode selects which tools a server exposes.
type Mode string

const (
	ModeAll       Mode = "all"
	ModeLive      Mode = "live"
	ModeDev       Mode = "dev"
	ModeDiscovery Mode = "discovery"
)

// ParseMode accepts all, live, dev or discovery (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAll, ModeLive, ModeDev, ModeDiscovery:
		return m, nil
	case "":
		return ModeAll, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected all, live, dev or discovery)", s)
	}
}

// ToolInfo describes a tool and the modes that expose it.
type ToolInfo struct {
	Name        string
	Description string
	Modes       []Mode
}

// AvailableIn reports whether the tool is exposed in mode.
func (t ToolInfo) AvailableIn(mode Mode) bool {
	return mode == ModeAll || slices.Contains(t.Modes, mode)
}

const (
	ToolLaunchPipeline   = "gst_launch_pipeline"
	ToolSetPipelineState = "gst_set_pipeline_state"
	ToolGetStatus        = "gst_get_pipeline_status"
	ToolStopPipeline     = "gst_stop_pipeline"
	ToolListPipelines    = "gst_list_pipelines"
	ToolValidatePipeline = "gst_validate_pipeline"
	ToolWatchPipeline    = "gst_watch_pipeline"
)

var allModes = []Mode{ModeLive, ModeDev, ModeDiscovery}

// Catalog is the set of known tools.
type Catalog struct {
	tools map[string]ToolInfo
}

// NewCatalog returns the catalog of every pipeline tool.
func NewCatalog() *Catalog {
	c := &Catalog{tools: make(map[string]ToolInfo)}
	for _, t := range []ToolInfo{
		{
			Name:        ToolLaunchPipeline,
			Description: "Creates and launches a pipeline from a gst-launch style description. Accepts the description, an auto_play flag (default true) and an optional custom pipeline_id. Returns the pipeline ID and its state.",
			Modes:       []Mode{ModeLive},
		},
		{
			Name:        ToolSetPipelineState,
			Description: "Changes the state of an active pipeline. Accepts the pipeline ID and a target state (null, ready, paused or playing). Returns the resulting state.",
			Modes:       []Mode{ModeLive},
		},
		{
			Name:        ToolGetStatus,
			Description: "Retrieves the current status of a pipeline. Accepts the pipeline ID and an include_messages flag. Returns state, position, duration, counters and optionally recent bus messages.",
			Modes:       []Mode{ModeLive, ModeDiscovery},
		},
		{
			Name:        ToolStopPipeline,
			Description: "Stops a pipeline and releases its resources. Accepts the pipeline ID and a force flag that removes the pipeline even when the engine rejects the NULL transition.",
			Modes:       []Mode{ModeLive},
		},
		{
			Name:        ToolListPipelines,
			Description: "Lists all registered pipelines. Accepts an include_details flag. Returns pipeline IDs and states, plus descriptions, creation times and counters when details are requested.",
			Modes:       []Mode{ModeLive, ModeDiscovery},
		},
		{
			Name:        ToolValidatePipeline,
			Description: "Validates a pipeline description without launching it. Returns the list of elements that would be created or the reason the description is invalid.",
			Modes:       allModes,
		},
		{
			Name:        ToolWatchPipeline,
			Description: "Watches a pipeline's bus until end-of-stream, an error, or timeout_seconds without a message (default 5). Returns the messages recorded while watching.",
			Modes:       []Mode{ModeLive},
		},
	} {
		c.tools[t.Name] = t
	}
	return c
}

// Has reports whether name is a known tool.
func (c *Catalog) Has(name string) bool {
	_, ok := c.tools[name]
	return ok
}

func (c *Catalog) Get(name string) (ToolInfo, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Names returns every tool name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ForMode returns the tools exposed in mode, sorted.
func (c *Catalog) ForMode(mode Mode) []string {
	var names []string
	for _, name := range c.Names() {
		if c.tools[name].AvailableIn(mode) {
			names = append(names, name)
		}
	}
	return names
}

// Filter narrows ForMode(mode) to include (when non-empty) and then drops exclude.
func (c *Catalog) Filter(mode Mode, include, exclude []string) []string {
	var names []string
	for _, name := range c.ForMode(mode) {
		if len(include) > 0 && !slices.Contains(include, name) {
			continue
		}
		if slices.Contains(exclude, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}
