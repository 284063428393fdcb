package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

const unknownSource = "<unknown>"

// Classify maps one raw bus event to a history record. It returns false for events
// that are not recorded: element-scope state changes and kinds outside the record set.
func Classify(ev engine.RawEvent) (Message, bool) {
	msg := Message{
		Timestamp: ev.Timestamp,
		Source:    ev.SourcePath(),
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch ev.Kind {
	case engine.EventEOS:
		msg.Kind, msg.Text = KindEOS, "End of stream"
	case engine.EventError:
		msg.Kind, msg.Text = KindError, report("Error", ev)
	case engine.EventWarning:
		msg.Kind, msg.Text = KindWarning, report("Warning", ev)
	case engine.EventStateChanged:
		if ev.Source == nil || !ev.Source.IsPipeline {
			return Message{}, false
		}
		msg.Kind = KindStateChanged
		msg.Text = fmt.Sprintf("State changed from %s to %s", ev.Old, ev.New)
	case engine.EventBuffering:
		msg.Kind, msg.Text = KindBuffering, fmt.Sprintf("Buffering: %d%%", ev.Percent)
	case engine.EventTag:
		msg.Kind, msg.Text = KindTag, "Tags: "+formatTags(ev.Tags)
	case engine.EventStreamStatus:
		msg.Kind, msg.Text = KindStreamStatus, "Stream status: "+ev.Status
	case engine.EventApplication:
		msg.Kind = KindApplication
		msg.Text = named("Application message: ", "Application-specific message", ev.Name)
	case engine.EventElement:
		msg.Kind = KindElement
		msg.Text = named("Element message: ", "Element-specific message", ev.Name)
	case engine.EventDurationChanged:
		msg.Kind, msg.Text = KindDurationChanged, "Duration changed"
	case engine.EventLatency:
		msg.Kind, msg.Text = KindLatency, "Latency update"
	default:
		return Message{}, false
	}
	return msg, true
}

func report(prefix string, ev engine.RawEvent) string {
	path := ev.SourcePath()
	if path == "" {
		path = unknownSource
	}
	if ev.Debug == "" {
		return fmt.Sprintf("%s from %s: %s", prefix, path, ev.Error)
	}
	return fmt.Sprintf("%s from %s: %s (%s)", prefix, path, ev.Error, ev.Debug)
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + tags[k]
	}
	return strings.Join(pairs, ", ")
}

func named(prefix, fallback, name string) string {
	if name == "" {
		return fallback
	}
	return prefix + name
}
