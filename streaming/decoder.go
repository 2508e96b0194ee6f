package streaming

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns a chunked server-sent event byte stream into Events.
//
// Chunks may split or join logical lines arbitrarily. The decoder keeps the
// trailing partial line until the next chunk or Finish, so the emitted
// sequence depends only on the concatenated bytes. Lines that cannot be
// parsed are logged and dropped.
type Decoder struct {
	logger Logger

	buf []byte

	pendingReason string
	pendingUsage  Usage
	stopped       bool
	done          bool
	dropped       int
}

// NewDecoder creates a decoder. A nil logger discards log output.
func NewDecoder(logger Logger) *Decoder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Decoder{logger: logger}
}

// Feed consumes the next chunk and returns every event completed by it.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		events = d.handleLine(line, events)
	}
	if d.done {
		d.buf = nil
	}
	return events
}

// Finish signals the end of input. It processes a final unterminated line
// and, when the turn never stopped, emits a terminal ErrorEvent.
func (d *Decoder) Finish() []Event {
	if d.done {
		return nil
	}

	var events []Event
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		events = d.handleLine(line, events)
	}
	if !d.done {
		d.done = true
		events = append(events, &ErrorEvent{Err: ErrUnexpectedEOF})
	}
	return events
}

// Fail ends the session because the transport failed.
func (d *Decoder) Fail(err error) []Event {
	if d.done {
		return nil
	}
	d.done = true
	d.buf = nil
	return []Event{&ErrorEvent{Err: fmt.Errorf("%w: %w", ErrTransport, err)}}
}

// Done reports whether a terminal event has been emitted.
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped returns the number of malformed lines that were skipped.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) handleLine(line string, events []Event) []Event {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		// event names, comments and blank separators carry nothing we need
		return events
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return events
	}

	if payload == doneSentinel {
		d.done = true
		if d.stopped {
			return events
		}
		if d.pendingReason != "" {
			return append(events, d.turnStop())
		}
		return append(events, &ErrorEvent{Err: ErrUnexpectedEOF})
	}

	if !gjson.Valid(payload) {
		d.drop("invalid json", payload)
		return events
	}

	return d.handleRecord(gjson.Parse(payload), payload, events)
}

func (d *Decoder) handleRecord(rec gjson.Result, payload string, events []Event) []Event {
	recordType := rec.Get("type").String()

	switch recordType {
	case "message_start":
		usage := parseUsage(rec.Get("message.usage"))
		d.pendingUsage = usage
		return append(events, &TurnStartEvent{
			MessageID: rec.Get("message.id").String(),
			Model:     rec.Get("message.model").String(),
			Usage:     usage,
		})

	case "content_block_start":
		index, ok := recordIndex(rec)
		if !ok {
			d.drop("missing index", payload)
			return events
		}
		return d.handleBlockStart(index, rec.Get("content_block"), events)

	case "content_block_delta":
		index, ok := recordIndex(rec)
		if !ok {
			d.drop("missing index", payload)
			return events
		}
		return d.handleBlockDelta(index, rec.Get("delta"), payload, events)

	case "content_block_stop":
		index, ok := recordIndex(rec)
		if !ok {
			d.drop("missing index", payload)
			return events
		}
		return append(events, &BlockStopEvent{Index: index})

	case "message_delta":
		if reason := rec.Get("delta.stop_reason"); reason.Exists() && reason.Type != gjson.Null {
			d.pendingReason = reason.String()
		}
		if out := rec.Get("usage.output_tokens"); out.Exists() {
			d.pendingUsage.OutputTokens = out.Int()
		}
		return events

	case "message_stop":
		d.done = true
		return append(events, d.turnStop())

	case "ping":
		return events

	case "error":
		d.done = true
		return append(events, &ErrorEvent{Err: fmt.Errorf("%w: %s: %s",
			ErrUpstream, rec.Get("error.type").String(), rec.Get("error.message").String())})

	default:
		d.logger.Debug("ignoring unknown stream record", "record_type", recordType)
		return events
	}
}

func (d *Decoder) handleBlockStart(index int, block gjson.Result, events []Event) []Event {
	switch block.Get("type").String() {
	case "text":
		if text := block.Get("text").String(); text != "" {
			events = append(events, &TextDeltaEvent{Index: index, Text: text})
		}
		return events

	case "thinking":
		if text := block.Get("thinking").String(); text != "" {
			events = append(events, &ReasoningDeltaEvent{Index: index, Text: text})
		}
		if sig := block.Get("signature").String(); sig != "" {
			events = append(events, &ReasoningSignatureEvent{Index: index, Signature: sig})
		}
		return events

	case "tool_use", "server_tool_use":
		ev := &ToolBlockStartEvent{
			Index:    index,
			ToolID:   block.Get("id").String(),
			ToolName: block.Get("name").String(),
		}
		if input := block.Get("input"); input.Exists() && input.IsObject() {
			ev.InitialInput = []byte(input.Raw)
		}
		return append(events, ev)

	default:
		d.logger.Debug("ignoring unknown content block", "block_type", block.Get("type").String(), "index", index)
		return events
	}
}

func (d *Decoder) handleBlockDelta(index int, delta gjson.Result, payload string, events []Event) []Event {
	switch delta.Get("type").String() {
	case "text_delta":
		return append(events, &TextDeltaEvent{Index: index, Text: delta.Get("text").String()})
	case "thinking_delta":
		return append(events, &ReasoningDeltaEvent{Index: index, Text: delta.Get("thinking").String()})
	case "signature_delta":
		return append(events, &ReasoningSignatureEvent{Index: index, Signature: delta.Get("signature").String()})
	case "input_json_delta":
		return append(events, &ToolArgumentDeltaEvent{Index: index, PartialJSON: delta.Get("partial_json").String()})
	default:
		d.drop("unknown delta type", payload)
		return events
	}
}

func (d *Decoder) turnStop() *TurnStopEvent {
	d.stopped = true
	return &TurnStopEvent{
		Reason:    ParseStopReason(d.pendingReason),
		RawReason: d.pendingReason,
		Usage:     d.pendingUsage,
	}
}

func (d *Decoder) drop(reason, payload string) {
	d.dropped++
	if len(payload) > 200 {
		payload = payload[:200]
	}
	d.logger.Warn("dropping stream line", "reason", reason, "payload", payload)
}

func recordIndex(rec gjson.Result) (int, bool) {
	idx := rec.Get("index")
	if idx.Type != gjson.Number {
		return 0, false
	}
	return int(idx.Int()), true
}

func parseUsage(u gjson.Result) Usage {
	return Usage{
		InputTokens:         u.Get("input_tokens").Int(),
		OutputTokens:        u.Get("output_tokens").Int(),
		CacheCreationTokens: u.Get("cache_creation_input_tokens").Int(),
		CacheReadTokens:     u.Get("cache_read_input_tokens").Int(),
	}
}
