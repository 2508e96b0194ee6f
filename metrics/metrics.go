// Package metrics exports conversation loop metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youssefsiam38/aepilot/hooks"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

// Collector holds the metric vectors of one registry. Register it on a hook
// registry with hooks.Registry.Use.
type Collector struct {
	// Requests counts upstream model requests
	Requests prometheus.Counter

	// Messages counts decoded assistant messages by stop reason
	Messages *prometheus.CounterVec

	// Tokens counts tokens by direction (input, output)
	Tokens *prometheus.CounterVec

	// Runs counts finished runs by final state
	Runs *prometheus.CounterVec

	// ToolCalls counts tool invocations by tool and status
	ToolCalls *prometheus.CounterVec

	// ToolDuration tracks tool latency
	ToolDuration *prometheus.HistogramVec

	// DecoderDrops counts stream lines the decoder could not use
	DecoderDrops prometheus.Counter
}

// New registers the collector's metrics on reg
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "aepilot_requests_total",
			Help: "Total number of upstream model requests",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aepilot_messages_total",
			Help: "Total number of assistant messages by stop reason",
		}, []string{"stop_reason"}),
		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aepilot_tokens_total",
			Help: "Total number of tokens by direction",
		}, []string{"direction"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aepilot_runs_total",
			Help: "Total number of conversation runs by final state",
		}, []string{"state"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aepilot_tool_calls_total",
			Help: "Total number of tool calls",
		}, []string{"tool", "status"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aepilot_tool_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		DecoderDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "aepilot_decoder_dropped_lines_total",
			Help: "Total number of stream lines dropped by the decoder",
		}),
	}
}

// BeforeRequest counts a request
func (c *Collector) BeforeRequest(ctx context.Context, sessionID string, turns []transcript.Turn) error {
	c.Requests.Inc()
	return nil
}

// AfterMessage records stop reason and token usage
func (c *Collector) AfterMessage(ctx context.Context, sessionID string, msg *streaming.Message) error {
	c.Messages.WithLabelValues(msg.StopReason.String()).Inc()
	c.Tokens.WithLabelValues("input").Add(float64(msg.Usage.InputTokens))
	c.Tokens.WithLabelValues("output").Add(float64(msg.Usage.OutputTokens))
	return nil
}

// ToolCall records a tool invocation
func (c *Collector) ToolCall(ctx context.Context, sessionID string, req tool.Request, result tool.Result) error {
	status := "success"
	switch {
	case result.Cached:
		status = "cached"
	case !result.Success:
		status = "error"
	}
	c.ToolCalls.WithLabelValues(req.Name, status).Inc()
	if !result.Cached {
		c.ToolDuration.WithLabelValues(req.Name).Observe(result.Duration.Seconds())
	}
	return nil
}

// RunComplete records the final state of a run
func (c *Collector) RunComplete(ctx context.Context, summary hooks.RunSummary) error {
	c.Runs.WithLabelValues(summary.State).Inc()
	return nil
}

// RecordDecoderDrops adds n dropped stream lines
func (c *Collector) RecordDecoderDrops(n int) {
	if n > 0 {
		c.DecoderDrops.Add(float64(n))
	}
}

// Handler returns the Prometheus metrics HTTP handler for g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
