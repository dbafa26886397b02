package universal

import (
	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
)

type askHumanArgs struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// askHumanSpec enqueues a human request and suspends the calling turn
// until it is answered or cancelled.
func askHumanSpec() *universal {
	return &universal{
		name:        "ask_human",
		description: "Ask the human operator a question and wait for their reply.",
		parameters: schema(map[string]any{
			"question": map[string]any{"type": "string", "description": "the question to show the human"},
			"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "optional fixed choice list"},
		}, "question"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args askHumanArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Question == "" {
				args.Question = msg.Text
			}

			requestID := deps.Queue.Enqueue(ctx.CallerPO, args.Question, args.Options)
			if deps.Bus != nil {
				_ = deps.Bus.Publish(bus.Event{
					SessionID: ctx.SessionID,
					Kind:      bus.KindNotification,
					Content:   args.Question,
					Extra: map[string]any{
						"request_id": requestID,
						"po_name":    ctx.CallerPO,
						"options":    args.Options,
					},
				})
			}

			var done <-chan struct{}
			if ctx.Ctx != nil {
				done = ctx.Ctx.Done()
			}
			outcome, err := deps.Queue.Await(requestID, done)
			if err != nil {
				return capability.Result{}, err
			}

			if deps.Bus != nil {
				_ = deps.Bus.Publish(bus.Event{
					SessionID: ctx.SessionID,
					Kind:      bus.KindNotificationResolved,
					Content:   outcome.Response,
					Extra: map[string]any{
						"request_id": requestID,
						"cancelled":  outcome.Cancelled,
					},
				})
			}

			if outcome.Cancelled {
				return capability.ErrorResult("ask_human cancelled"), nil
			}
			return capability.TextResult(outcome.Response), nil
		},
	}
}

type thinkArgs struct {
	Thought string `json:"thought"`
}

// thinkSpec is a structured scratchpad: the submitted text is echoed
// back verbatim and persisted as an ordinary tool result, enabling
// chain-of-thought without an extra LLM round trip.
func thinkSpec() *universal {
	return &universal{
		name:        "think",
		description: "Record a reasoning step; the text is returned unchanged.",
		parameters: schema(map[string]any{
			"thought": map[string]any{"type": "string"},
		}, "thought"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args thinkArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Thought == "" {
				args.Thought = msg.Text
			}
			return capability.TextResult(args.Thought), nil
		},
	}
}
