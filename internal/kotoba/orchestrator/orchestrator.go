// Package orchestrator runs the per-message pipeline: action check, context
// assembly, model call, history write and reply dispatch.
//
// An Orchestrator is built from one configuration snapshot and never changes
// afterwards. Reconfiguration builds a new one; in-flight messages finish on
// the instance they started with.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/actions"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/memory"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/farcaster"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/twitter"
)

// AnalysisSeparator joins an action's text and the model's elaboration.
const AnalysisSeparator = "\n\n🔍 Analysis:\n"

// Pipeline paths, used as the metrics label.
const (
	pathAction     = "action"
	pathElaborated = "elaborated"
	pathModel      = "model"
	pathScheduled  = "scheduled"
)

// Generator produces one model completion trimmed for a platform.
type Generator interface {
	Generate(ctx context.Context, msgs []llm.Message, platform message.Platform) (string, error)
}

// Memory is the slice of the memory store the pipeline uses.
type Memory interface {
	AppendTurn(ctx context.Context, id string, turn memory.Turn) error
	GetTurns(ctx context.Context, id string) ([]memory.Turn, error)
	GetLongTerm(ctx context.Context, username string) ([]memory.Entry, error)
	FormatForContext(entries []memory.Entry) string
}

// TelegramSender sends a chat message.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// CastPublisher publishes a Farcaster cast.
type CastPublisher interface {
	PublishCast(ctx context.Context, text, parentHash string, embeds []json.RawMessage) (*farcaster.CastResponse, error)
}

// Options are the collaborators of an Orchestrator. A nil adapter means the
// platform is disabled.
type Options struct {
	Actions *actions.Registry
	Memory  Memory
	Gateway Generator
	// Persona is the system prompt placed first in every conversational
	// request.
	Persona string

	Telegram  TelegramSender
	Farcaster CastPublisher
	Twitter   twitter.Poster

	// HistoryWindow caps how many of the most recent turns are put into the
	// prompt. Zero loads the whole history.
	HistoryWindow int
}

// Orchestrator processes messages. It is safe for concurrent use.
type Orchestrator struct {
	opts Options
}

// New returns an Orchestrator over opts.
func New(opts Options) *Orchestrator {
	if opts.Actions == nil {
		opts.Actions = actions.NewRegistry()
	}
	return &Orchestrator{opts: opts}
}

// ScheduledOptions tune ProcessScheduledMessage.
type ScheduledOptions struct {
	// Context, when set, replaces the matched action's context as the system
	// prompt of the elaboration call.
	Context string
}

// ProcessMessage handles one inbound message end to end and returns what was
// sent. Any failure aborts the pipeline and is returned; steps already
// completed are not rolled back.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg *message.Message) (res *actions.Result, err error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	log := observability.WithTrace(ctx).With("platform", msg.Platform, "author", msg.Author.Username)
	path := pathModel
	defer func() {
		observability.MessagesTotal.WithLabelValues(string(msg.Platform), path, observability.Outcome(err)).Inc()
	}()

	log.Info("orchestrator: processing message", "id", msg.ID)

	if action := o.opts.Actions.Match(msg); action != nil {
		path = pathAction
		log.Info("orchestrator: action matched", "action", action.Name())
		ar, err := execute(ctx, action, msg)
		if err != nil {
			return nil, err
		}
		if ar.Context == "" {
			if !ar.ShouldSendMessage {
				return ar, nil
			}
			sent, err := o.dispatch(ctx, msg, ar.Text, ar.Embeds)
			if err != nil {
				return nil, err
			}
			out := *ar
			out.Text = sent
			return &out, nil
		}

		path = pathElaborated
		elaboration, err := o.opts.Gateway.Generate(ctx, []llm.Message{
			llm.System(ar.Context),
			llm.User(ar.Text),
		}, msg.Platform)
		if err != nil {
			return nil, err
		}
		sent, err := o.dispatch(ctx, msg, ar.Text+AnalysisSeparator+elaboration, ar.Embeds)
		if err != nil {
			return nil, err
		}
		return &actions.Result{Text: sent, ShouldSendMessage: true, Embeds: ar.Embeds}, nil
	}

	convID := msg.ConversationID()
	fullContext, err := o.buildContext(ctx, msg, convID)
	if err != nil {
		return nil, err
	}

	reply, err := o.opts.Gateway.Generate(ctx, []llm.Message{
		llm.System(o.opts.Persona),
		llm.System(fullContext),
		llm.User(msg.Text),
	}, msg.Platform)
	if err != nil {
		return nil, err
	}

	if err := o.opts.Memory.AppendTurn(ctx, convID, memory.Turn{Role: memory.RoleUser, Content: msg.Text}); err != nil {
		return nil, fmt.Errorf("store user turn: %w", err)
	}
	if err := o.opts.Memory.AppendTurn(ctx, convID, memory.Turn{Role: memory.RoleAssistant, Content: reply}); err != nil {
		return nil, fmt.Errorf("store assistant turn: %w", err)
	}

	sent, err := o.dispatch(ctx, msg, reply, nil)
	if err != nil {
		return nil, err
	}
	return &actions.Result{Text: sent, ShouldSendMessage: true}, nil
}

// execute runs action and treats a nil result as an error.
func execute(ctx context.Context, action actions.Action, msg *message.Message) (*actions.Result, error) {
	ar, err := action.Execute(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", action.Name(), err)
	}
	if ar == nil {
		return nil, fmt.Errorf("action %s: no result", action.Name())
	}
	return ar, nil
}

// buildContext joins the formatted long-term memories and the turn contents
// of convID into one block.
func (o *Orchestrator) buildContext(ctx context.Context, msg *message.Message, convID string) (string, error) {
	turns, err := o.opts.Memory.GetTurns(ctx, convID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if w := o.opts.HistoryWindow; w > 0 && len(turns) > w {
		turns = turns[len(turns)-w:]
	}
	entries, err := o.opts.Memory.GetLongTerm(ctx, msg.Author.Username)
	if err != nil {
		return "", fmt.Errorf("load long-term memory: %w", err)
	}

	contents := make([]string, len(turns))
	for i, t := range turns {
		contents[i] = t.Content
	}
	observability.WithTrace(ctx).Debug("orchestrator: context assembled",
		"turns", len(turns), "memories", len(entries))
	return o.opts.Memory.FormatForContext(entries) + "\n" + strings.Join(contents, "\n"), nil
}

// ProcessScheduledMessage runs the action check for a synthetic message and,
// when there is a context to elaborate with, returns the model text alone.
// It returns nil when no action matches. It never reads or writes history
// and never dispatches.
func (o *Orchestrator) ProcessScheduledMessage(ctx context.Context, msg *message.Message, opts ScheduledOptions) (res *actions.Result, err error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		observability.MessagesTotal.WithLabelValues(string(msg.Platform), pathScheduled, observability.Outcome(err)).Inc()
	}()

	action := o.opts.Actions.Match(msg)
	if action == nil {
		observability.WithTrace(ctx).Info("orchestrator: no action for scheduled message", "text", msg.Text)
		return nil, nil
	}
	ar, err := execute(ctx, action, msg)
	if err != nil {
		return nil, err
	}

	system := opts.Context
	if system == "" {
		system = ar.Context
	}
	if system == "" {
		return ar, nil
	}

	text, err := o.opts.Gateway.Generate(ctx, []llm.Message{
		llm.System(system),
		llm.User(ar.Text),
	}, msg.Platform)
	if err != nil {
		return nil, err
	}
	return &actions.Result{Text: text, ShouldSendMessage: true, Embeds: ar.Embeds}, nil
}

// dispatch routes text to the adapter of msg.Platform and returns the text
// as sent, trimmed to the platform limit.
func (o *Orchestrator) dispatch(ctx context.Context, msg *message.Message, text string, embeds []json.RawMessage) (sent string, err error) {
	defer func() {
		observability.DispatchTotal.WithLabelValues(string(msg.Platform), observability.Outcome(err)).Inc()
	}()
	// Action text is not trimmed by the gateway.
	text, _ = message.Truncate(msg.Platform, text)
	return text, o.send(ctx, msg, text, embeds)
}

func (o *Orchestrator) send(ctx context.Context, msg *message.Message, text string, embeds []json.RawMessage) error {
	switch msg.Platform {
	case message.Telegram:
		if o.opts.Telegram == nil {
			return errkind.Errorf(errkind.Adapter, "orchestrator.dispatch", "telegram is not enabled")
		}
		if msg.Author.ChatID == 0 {
			return errkind.Errorf(errkind.Adapter, "orchestrator.dispatch", "telegram reply to %s has no chat id", msg.ID)
		}
		return o.opts.Telegram.SendMessage(ctx, msg.Author.ChatID, text)

	case message.Farcaster:
		if o.opts.Farcaster == nil {
			return errkind.Errorf(errkind.Adapter, "orchestrator.dispatch", "farcaster is not enabled")
		}
		resp, err := o.opts.Farcaster.PublishCast(ctx, text, msg.Hash, embeds)
		if err != nil {
			return err
		}
		if resp != nil {
			observability.WithTrace(ctx).Info("orchestrator: cast published", "parent", msg.Hash, "hash", resp.Cast.Hash)
		}
		return nil

	case message.Twitter:
		if o.opts.Twitter == nil {
			return errkind.Errorf(errkind.Adapter, "orchestrator.dispatch", "twitter is not enabled")
		}
		return o.opts.Twitter.PostTweet(ctx, text)
	}
	return errkind.Errorf(errkind.Adapter, "orchestrator.dispatch", "unknown platform %q", msg.Platform)
}

// Publish posts text as a top-level cast and a tweet on whichever of the two
// are enabled. It fails with a Config error when neither is.
func (o *Orchestrator) Publish(ctx context.Context, text string, embeds []json.RawMessage) error {
	if o.opts.Farcaster == nil && o.opts.Twitter == nil {
		return errkind.Errorf(errkind.Config, "orchestrator.publish", "no publishing platform enabled")
	}
	log := observability.WithTrace(ctx)
	var errs []error
	if o.opts.Farcaster != nil {
		cast, _ := message.Truncate(message.Farcaster, text)
		_, err := o.opts.Farcaster.PublishCast(ctx, cast, "", embeds)
		observability.DispatchTotal.WithLabelValues(string(message.Farcaster), observability.Outcome(err)).Inc()
		if err != nil {
			errs = append(errs, fmt.Errorf("publish cast: %w", err))
		} else {
			log.Info("orchestrator: cast published", "chars", len([]rune(cast)))
		}
	}
	if o.opts.Twitter != nil {
		tweet, _ := message.Truncate(message.Twitter, text)
		err := o.opts.Twitter.PostTweet(ctx, tweet)
		observability.DispatchTotal.WithLabelValues(string(message.Twitter), observability.Outcome(err)).Inc()
		if err != nil {
			errs = append(errs, fmt.Errorf("post tweet: %w", err))
		} else {
			log.Info("orchestrator: tweet posted", "chars", len([]rune(tweet)))
		}
	}
	return errors.Join(errs...)
}
