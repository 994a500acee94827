package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/retrieval"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const defaultSystemPrompt = "You are a helpful assistant for a business directory website. " +
	"Answer questions about the listed businesses using the listing information provided."

const strictInstruction = "Only answer using the listing information above. " +
	"If the listings do not contain the answer, say you don't have that information " +
	"rather than guessing."

// Answer is the assistant's reply along with where its grounding came from.
type Answer struct {
	Reply  string
	Source string
}

// Dispatcher answers visitor messages: it retrieves listing context,
// assembles the system prompt, and asks the configured backend.
type Dispatcher struct {
	settings  *settings.Manager
	backends  *Manager
	assembler *retrieval.Assembler
	logger    *slog.Logger
}

func NewDispatcher(sm *settings.Manager, backends *Manager, assembler *retrieval.Assembler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		settings:  sm,
		backends:  backends,
		assembler: assembler,
		logger:    logger,
	}
}

// Ask answers a visitor message. Prior conversation turns, if any, are
// replayed verbatim between the synthesized system turn and the new
// message.
func (d *Dispatcher) Ask(ctx context.Context, message string, history ...Message) (Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Answer{}, apperr.New(apperr.KindValidation, "message is required")
	}

	cfg, err := d.settings.Load(ctx)
	if err != nil {
		return Answer{}, err
	}

	backend, err := d.backends.Current(ctx)
	if err != nil {
		return Answer{}, err
	}

	result, err := d.assembler.BuildContext(ctx, message)
	if err != nil {
		// Answer without grounding rather than failing the chat.
		d.logger.Warn("building chat context", "error", err)
		result = retrieval.Result{Source: retrieval.SourceNone}
	}
	d.logger.Debug("assembled chat context",
		"source", result.Source, "listings", len(result.Listings))

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: assemblePrompt(cfg, result.Context)})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: message})

	req := Request{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	reply, err := backend.Complete(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Reply: reply, Source: result.Source}, nil
}

// assemblePrompt builds the system prompt: persona, site framing, the base
// instructions, then the retrieved listing context.
func assemblePrompt(cfg settings.Settings, listingContext string) string {
	var b strings.Builder

	if cfg.AgentName != "" {
		b.WriteString("You are " + cfg.AgentName + ".\n")
	}
	if cfg.SiteName != "" {
		b.WriteString("You assist visitors of " + cfg.SiteName + ".\n")
	}

	base := cfg.SystemPrompt
	if base == "" {
		base = defaultSystemPrompt
	}
	b.WriteString(base)

	if listingContext != "" {
		b.WriteString("\n\nHere are relevant listings:\n\n")
		b.WriteString(listingContext)
		if cfg.StrictRetrieval {
			b.WriteString("\n\n")
			b.WriteString(strictInstruction)
		}
	}
	return b.String()
}
