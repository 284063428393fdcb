package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/bytedance/sonic"
)

type launchArgs struct {
	PipelineDescription string `json:"pipeline_description"`
	AutoPlay            *bool  `json:"auto_play,omitempty"`
	PipelineID          string `json:"pipeline_id,omitempty"`
}

type setStateArgs struct {
	PipelineID string `json:"pipeline_id"`
	State      string `json:"state"`
}

type statusArgs struct {
	PipelineID      string `json:"pipeline_id"`
	IncludeMessages bool   `json:"include_messages,omitempty"`
}

type stopArgs struct {
	PipelineID string `json:"pipeline_id"`
	Force      bool   `json:"force,omitempty"`
}

type listArgs struct {
	IncludeDetails bool `json:"include_details,omitempty"`
}

type validateArgs struct {
	PipelineDescription string `json:"pipeline_description"`
}

type watchArgs struct {
	PipelineID     string  `json:"pipeline_id"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

var inputSchemas = map[string]json.RawMessage{
	ToolLaunchPipeline: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_description":{"type":"string","description":"Pipeline description in gst-launch syntax"},` +
		`"auto_play":{"type":"boolean","description":"Whether to start the pipeline immediately (default true)"},` +
		`"pipeline_id":{"type":"string","description":"Optional custom pipeline ID"}},` +
		`"required":["pipeline_description"]}`),
	ToolSetPipelineState: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_id":{"type":"string","description":"Pipeline identifier"},` +
		`"state":{"type":"string","enum":["null","ready","paused","playing"],"description":"Target state"}},` +
		`"required":["pipeline_id","state"]}`),
	ToolGetStatus: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_id":{"type":"string","description":"Pipeline identifier"},` +
		`"include_messages":{"type":"boolean","description":"Include recent bus messages"}},` +
		`"required":["pipeline_id"]}`),
	ToolStopPipeline: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_id":{"type":"string","description":"Pipeline identifier"},` +
		`"force":{"type":"boolean","description":"Remove the pipeline even if the NULL transition is rejected"}},` +
		`"required":["pipeline_id"]}`),
	ToolListPipelines: json.RawMessage(`{"type":"object","properties":{` +
		`"include_details":{"type":"boolean","description":"Include detailed information"}}}`),
	ToolValidatePipeline: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_description":{"type":"string","description":"Pipeline description to validate"}},` +
		`"required":["pipeline_description"]}`),
	ToolWatchPipeline: json.RawMessage(`{"type":"object","properties":{` +
		`"pipeline_id":{"type":"string","description":"Pipeline identifier"},` +
		`"timeout_seconds":{"type":"number","description":"Seconds without a bus message before the watch ends"}},` +
		`"required":["pipeline_id"]}`),
}

func (s *Server) handlers() map[string]toolFunc {
	return map[string]toolFunc{
		ToolLaunchPipeline:   s.launchPipeline,
		ToolSetPipelineState: s.setPipelineState,
		ToolGetStatus:        s.getPipelineStatus,
		ToolStopPipeline:     s.stopPipeline,
		ToolListPipelines:    s.listPipelines,
		ToolValidatePipeline: s.validatePipeline,
		ToolWatchPipeline:    s.watchPipeline,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

// requireArgs takes name, value pairs and rejects the first blank value.
func requireArgs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", errInvalidArguments, pairs[i])
		}
	}
	return nil
}

func (s *Server) launchPipeline(ctx context.Context, raw json.RawMessage) (string, error) {
	var args launchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_description", args.PipelineDescription); err != nil {
		return "", err
	}

	id, err := s.manager.Create(ctx, args.PipelineDescription, pipeline.CreateOptions{
		ID:      args.PipelineID,
		Monitor: s.opts.MonitorBus,
	})
	if err != nil {
		return "", err
	}

	if args.AutoPlay != nil && !*args.AutoPlay {
		return fmt.Sprintf("Pipeline '%s' created successfully in NULL state.\nDescription: %s",
			id, args.PipelineDescription), nil
	}

	state, err := s.manager.SetState(ctx, id, engine.StatePlaying)
	if err != nil {
		return "", fmt.Errorf("pipeline '%s' was created but did not start: %w", id, err)
	}
	return fmt.Sprintf("Pipeline '%s' launched successfully.\nState: %s\nDescription: %s",
		id, state, args.PipelineDescription), nil
}

func (s *Server) setPipelineState(ctx context.Context, raw json.RawMessage) (string, error) {
	var args setStateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_id", args.PipelineID, "state", args.State); err != nil {
		return "", err
	}

	target, err := pipeline.ParseState(args.State)
	if err != nil {
		return "", err
	}
	state, err := s.manager.SetState(ctx, args.PipelineID, target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pipeline '%s' state changed to %s", args.PipelineID, state), nil
}

func (s *Server) getPipelineStatus(_ context.Context, raw json.RawMessage) (string, error) {
	var args statusArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_id", args.PipelineID); err != nil {
		return "", err
	}

	limit := 0
	if args.IncludeMessages {
		limit = s.opts.StatusMessages
	}
	st, err := s.manager.Status(args.PipelineID, limit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline: %s\nDescription: %s\nState: %s\n", st.ID, st.Description, st.CurrentState)
	if st.PendingState != engine.StateVoidPending {
		fmt.Fprintf(&b, "Pending State: %s\n", st.PendingState)
	}
	if st.Position != nil {
		fmt.Fprintf(&b, "Position: %d ns\n", st.Position.Nanoseconds())
	}
	if st.Duration != nil {
		fmt.Fprintf(&b, "Duration: %d ns\n", st.Duration.Nanoseconds())
	}
	fmt.Fprintf(&b, "Errors: %d, Warnings: %d\n", st.ErrorCount, st.WarningCount)
	fmt.Fprintf(&b, "Created: %s\nLast State Change: %s\n",
		st.CreatedAt.Format(time.RFC3339), st.LastStateChange.Format(time.RFC3339))
	if st.MonitorLost {
		b.WriteString("Bus monitor: stream lost\n")
	}

	if len(st.Messages) > 0 {
		b.WriteString("\nRecent Messages:\n")
		writeMessages(&b, st.Messages)
	}
	return b.String(), nil
}

func (s *Server) stopPipeline(ctx context.Context, raw json.RawMessage) (string, error) {
	var args stopArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_id", args.PipelineID); err != nil {
		return "", err
	}

	if err := s.manager.Stop(ctx, args.PipelineID, args.Force); err != nil {
		return "", err
	}
	return fmt.Sprintf("Pipeline '%s' stopped and removed successfully", args.PipelineID), nil
}

func (s *Server) listPipelines(_ context.Context, raw json.RawMessage) (string, error) {
	var args listArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}

	infos := s.manager.List()
	if len(infos) == 0 {
		return "No active pipelines", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active pipelines: %d\n\n", len(infos))
	for _, info := range infos {
		if args.IncludeDetails {
			fmt.Fprintf(&b, "ID: %s\n  Description: %s\n  State: %s\n  Created: %s\n  Errors: %d, Warnings: %d\n\n",
				info.ID, info.Description, info.State, info.CreatedAt.Format(time.RFC3339),
				info.ErrorCount, info.WarningCount)
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", info.ID, info.State)
	}
	return b.String(), nil
}

// validatePipeline reports an invalid description as a normal result; only
// malformed arguments and engine failures are tool errors.
func (s *Server) validatePipeline(ctx context.Context, raw json.RawMessage) (string, error) {
	var args validateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_description", args.PipelineDescription); err != nil {
		return "", err
	}

	elements, err := s.manager.Validate(ctx, args.PipelineDescription)
	if err != nil {
		if pipeline.Code(err) == "parse_error" {
			return fmt.Sprintf("Pipeline validation failed:\n%v", err), nil
		}
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline description is valid!\n\nElements that would be created (%d):\n", len(elements))
	for _, el := range elements {
		fmt.Fprintf(&b, "- %s\n", el)
	}
	return b.String(), nil
}

func (s *Server) watchPipeline(ctx context.Context, raw json.RawMessage) (string, error) {
	var args watchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if err := requireArgs("pipeline_id", args.PipelineID); err != nil {
		return "", err
	}
	if args.TimeoutSeconds < 0 {
		return "", fmt.Errorf("%w: timeout_seconds must not be negative", errInvalidArguments)
	}

	before, err := s.manager.Messages(args.PipelineID, 0)
	if err != nil {
		return "", err
	}
	var cursor uint64
	if len(before) > 0 {
		cursor = before[len(before)-1].Seq
	}

	timeout := time.Duration(args.TimeoutSeconds * float64(time.Second))
	if err := s.manager.WatchBlocking(ctx, args.PipelineID, timeout); err != nil {
		return "", err
	}

	msgs, err := s.manager.Messages(args.PipelineID, cursor)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("No bus messages from pipeline '%s' before the watch timed out", args.PipelineID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Watched pipeline '%s': %d messages\n", args.PipelineID, len(msgs))
	writeMessages(&b, msgs)
	if last := msgs[len(msgs)-1]; last.Terminal() {
		fmt.Fprintf(&b, "Watch ended on %s\n", last.Kind)
	}
	return b.String(), nil
}

func writeMessages(b *strings.Builder, msgs []pipeline.Message) {
	for _, msg := range msgs {
		fmt.Fprintf(b, "  [%s] %s: %s\n", msg.Timestamp.Format(time.RFC3339Nano), msg.Kind, msg.Text)
	}
}
