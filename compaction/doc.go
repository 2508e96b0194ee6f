// Package compaction keeps a conversation transcript inside the model's
// context window.
//
// Compaction runs in two phases:
//
//   - Prune: tool outputs older than the protected zone at the end of the
//     transcript are replaced with a short placeholder. This needs no request.
//
//   - Summarize: when pruning is not enough, the older part of the transcript
//     is replaced by a single user turn carrying a model-written summary.
//
// The split between older and recent turns always lands on a user turn, so a
// tool call is never separated from its results.
//
// # Usage
//
//	c, err := compaction.New(completer, compaction.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	if c.ShouldCompact(ctx, turns) {
//	    result, err := c.Compact(ctx, turns)
//	    ...
//	}
//
// Token counts are approximated from character counts unless Config.Counter
// is set, for example to the Messages API counter in provider/anthropic.
package compaction
