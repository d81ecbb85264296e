package aireply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/entity"
)

// ErrEmptyReply is returned when the model answers with no text
var ErrEmptyReply = errors.New("empty reply from model")

// GenerateRequest is the context handed to a Generator
type GenerateRequest struct {
	Persona *Persona
	// History is the recent conversation, oldest first, without UserMessage.
	History     []*entity.Message
	UserMessage *entity.Message
}

// Generator produces the text of an AI reply
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// OpenAIGenerator generates replies with the chat completion API
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator creates a generator from the ai config section
func NewOpenAIGenerator(cfg config.AIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate asks the model for the persona's next reply
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  buildMessages(req),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// buildMessages maps the persona's own messages to the assistant role and everything else to the user role
func buildMessages(req GenerateRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.Persona != nil && req.Persona.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Persona.SystemPrompt,
		})
	}

	personaId := ""
	if req.Persona != nil {
		personaId = entity.AIParticipantId(req.Persona.Id)
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.SenderId == personaId {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	if req.UserMessage != nil {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserMessage.Content,
		})
	}
	return messages
}
