// Package aireply answers messages sent to AI personas.
//
// A human message in a conversation whose other participant is an AI persona
// dispatches a detached task: typing on, generate, append the reply through the
// normal send path, typing off. Failures are logged and counted, never returned.
package aireply

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/metrics"
	"github.com/mbeoliero/unichat/internal/service"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// MessageSender appends a message as a participant
type MessageSender interface {
	SendMessage(ctx context.Context, req *service.SendMessageRequest) (*entity.Message, error)
}

// HistoryReader reads the tail of a conversation
type HistoryReader interface {
	RecentMessages(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error)
}

// TypingNotifier shows or hides the typing indicator of a persona
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, conversationId, participantId string, userIds []string, typing bool)
}

// Options tunes the orchestrator
type Options struct {
	Timeout       time.Duration
	MinTyping     time.Duration
	MaxConcurrent int
	HistoryLimit  int
}

// Task is one pending AI reply
type Task struct {
	ConversationId      string
	TriggeringMessageId string
	UserMessage         *entity.Message
	AICharacterId       string
	PersonaId           string
	ParticipantIds      []string
}

// Orchestrator dispatches AI replies
type Orchestrator struct {
	gen      Generator
	personas *Registry
	sender   MessageSender
	history  HistoryReader
	typing   TypingNotifier
	opts     Options

	sem chan struct{}
	wg  sync.WaitGroup
}

var _ service.ReplyTrigger = (*Orchestrator)(nil)

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(gen Generator, personas *Registry, sender MessageSender, history HistoryReader, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 32
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if personas == nil {
		personas = NewRegistry(nil)
	}
	return &Orchestrator{
		gen:      gen,
		personas: personas,
		sender:   sender,
		history:  history,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxConcurrent),
	}
}

// SetTypingNotifier sets the typing indicator sink
func (o *Orchestrator) SetTypingNotifier(t TypingNotifier) {
	o.typing = t
}

// TriggerAIResponse dispatches a reply when a human writes to an AI persona. It never blocks.
func (o *Orchestrator) TriggerAIResponse(ctx context.Context, conv *entity.Conversation, msg *entity.Message) {
	if conv == nil || msg == nil || entity.IsAIParticipant(msg.SenderId) {
		return
	}
	personaId := conv.OtherParticipant(msg.SenderId)
	if !entity.IsAIParticipant(personaId) {
		return
	}

	task := &Task{
		ConversationId:      conv.Id,
		TriggeringMessageId: msg.Id,
		UserMessage:         msg,
		AICharacterId:       entity.PersonaIdOf(personaId),
		PersonaId:           personaId,
		ParticipantIds:      append([]string(nil), conv.ParticipantIds...),
	}

	select {
	case o.sem <- struct{}{}:
	default:
		log.CtxWarn(ctx, "ai reply dropped, too many in flight: conversation_id=%s, message_id=%s", task.ConversationId, task.TriggeringMessageId)
		metrics.RecordAIReply(metrics.OutcomeDropped, time.Now())
		return
	}

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), task)
}

// Wait blocks until every dispatched task has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, task *Task) {
	started := time.Now()
	defer o.wg.Done()
	defer func() { <-o.sem }()

	o.setTyping(ctx, task, true)
	defer o.setTyping(ctx, task, false)

	defer func() {
		if r := recover(); r != nil {
			log.CtxError(ctx, "ai reply panicked: conversation_id=%s, panic=%v", task.ConversationId, r)
			metrics.RecordAIReply(metrics.OutcomeFailed, started)
		}
	}()

	outcome := o.reply(ctx, task, started)
	metrics.RecordAIReply(outcome, started)
}

// reply generates and appends the reply, returning the outcome label
func (o *Orchestrator) reply(ctx context.Context, task *Task, started time.Time) string {
	genCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	persona := o.personas.Lookup(task.AICharacterId)
	history := o.loadHistory(genCtx, task)

	text, err := o.gen.Generate(genCtx, GenerateRequest{
		Persona:     persona,
		History:     history,
		UserMessage: task.UserMessage,
	})
	if err != nil {
		log.CtxWarn(ctx, "ai reply failed: conversation_id=%s, character_id=%s, error=%v",
			task.ConversationId, task.AICharacterId, errcode.ErrGenerationFailed.Wrap(err))
		o.holdTyping(ctx, started)
		if errors.Is(err, context.DeadlineExceeded) {
			return metrics.OutcomeTimeout
		}
		return metrics.OutcomeFailed
	}

	o.holdTyping(ctx, started)

	msg, err := o.sender.SendMessage(ctx, &service.SendMessageRequest{
		ConversationId: task.ConversationId,
		SenderId:       task.PersonaId,
		SenderName:     persona.Name,
		SenderAvatar:   persona.Avatar,
		Content:        text,
	})
	if err != nil {
		log.CtxWarn(ctx, "ai reply not delivered: conversation_id=%s, character_id=%s, error=%v",
			task.ConversationId, task.AICharacterId, err)
		if errors.Is(err, errcode.ErrConvNotFound) {
			return metrics.OutcomeCanceled
		}
		return metrics.OutcomeFailed
	}

	log.CtxInfo(ctx, "ai reply sent: conversation_id=%s, character_id=%s, seq=%d, elapsed=%s",
		task.ConversationId, task.AICharacterId, msg.Seq, time.Since(started))
	return metrics.OutcomeSent
}

func (o *Orchestrator) loadHistory(ctx context.Context, task *Task) []*entity.Message {
	if o.history == nil || o.opts.HistoryLimit <= 0 {
		return nil
	}
	// one extra so the triggering message can be dropped without losing context
	recent, err := o.history.RecentMessages(ctx, task.ConversationId, o.opts.HistoryLimit+1)
	if err != nil {
		log.CtxWarn(ctx, "load ai history failed: conversation_id=%s, error=%v", task.ConversationId, err)
		return nil
	}
	history := make([]*entity.Message, 0, len(recent))
	for _, m := range recent {
		if m.Id != task.TriggeringMessageId {
			history = append(history, m)
		}
	}
	if len(history) > o.opts.HistoryLimit {
		history = history[len(history)-o.opts.HistoryLimit:]
	}
	return history
}

// holdTyping keeps the indicator visible for at least MinTyping after dispatch
func (o *Orchestrator) holdTyping(ctx context.Context, started time.Time) {
	remaining := o.opts.MinTyping - time.Since(started)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) setTyping(ctx context.Context, task *Task, typing bool) {
	if o.typing == nil {
		return
	}
	o.typing.NotifyTyping(ctx, task.ConversationId, task.PersonaId, task.ParticipantIds, typing)
}
