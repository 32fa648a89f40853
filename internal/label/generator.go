package label

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

// MaxLength is the longest label the generator produces, in runes.
const MaxLength = 50

const maxTokens = 32

// ErrNoUserMessage is returned when the message window has no usable user message.
var ErrNoUserMessage = errors.New("no user message in window")

// Strategy records which strategy produced a candidate. It is for logging only.
type Strategy string

const (
	StrategyPrimary  Strategy = "primary"
	StrategyFallback Strategy = "fallback"
)

// Candidate is a generated label that has not been persisted yet.
type Candidate struct {
	Text        string
	Strategy    Strategy
	GeneratedAt time.Time
}

// Completer is a natural-language generation capability.
type Completer interface {
	Complete(ctx context.Context, system string, messages []session.Message, maxTokens int) (string, error)
}

// Generator derives a label from the opening messages of a session.
type Generator struct {
	llm     Completer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Generator. llm may be nil, in which case only the fallback strategy runs.
func New(llm Completer, timeout time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		llm:     llm,
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate returns a label candidate for the given message window.
// It fails only with ErrNoUserMessage, when no user message has non-blank content;
// capability failures fall through to the fallback strategy.
func (g *Generator) Generate(ctx context.Context, sessionID string, msgs []session.Message) (Candidate, error) {
	if !hasUserMessage(msgs) {
		return Candidate{}, ErrNoUserMessage
	}

	if g.llm != nil {
		text, err := g.primary(ctx, msgs)
		if err == nil {
			return Candidate{Text: text, Strategy: StrategyPrimary, GeneratedAt: g.now()}, nil
		}
		g.logger.Warn("primary label strategy failed, using fallback",
			"session_id", sessionID,
			"error", err,
		)
	}

	return Candidate{Text: fallbackLabel(msgs), Strategy: StrategyFallback, GeneratedAt: g.now()}, nil
}

func (g *Generator) primary(ctx context.Context, msgs []session.Message) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(labelUserPrompt, formatTranscript(msgs))
	raw, err := g.llm.Complete(ctx, systemPrompt, []session.Message{
		{Role: session.RoleUser, Content: prompt},
	}, maxTokens)
	if err != nil {
		return "", fmt.Errorf("label completion: %w", err)
	}

	text := Clean(raw)
	if text == "" {
		return "", fmt.Errorf("label completion returned no usable text: %q", raw)
	}
	return text, nil
}

// Clean normalizes raw model output into a label, returning "" when nothing usable remains.
func Clean(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	for _, prefix := range []string{"title:", "label:"} {
		if strings.HasPrefix(lower, prefix) {
			line = strings.TrimSpace(line[len(prefix):])
			break
		}
	}

	line = strings.Trim(line, "\"'`*“”‘’ ")
	line = strings.TrimRight(line, ".!?:;, ")
	line = strings.Join(strings.Fields(line), " ")
	return Truncate(line, MaxLength)
}

// Truncate shortens s to at most max runes, cutting at the last word boundary.
// A single word longer than max is cut at max.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := r[:max]
	// A boundary directly after the cut keeps the last word whole.
	if r[max] == ' ' {
		return strings.TrimSpace(string(cut))
	}
	if i := strings.LastIndex(string(cut), " "); i > 0 {
		return strings.TrimSpace(string(cut)[:i])
	}
	return string(cut)
}

func hasUserMessage(msgs []session.Message) bool {
	for _, m := range msgs {
		if m.Role == session.RoleUser && strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// fallbackLabel runs Fallback over the user messages in order and returns the first
// non-empty result. When no user message has words (emoji, punctuation) the first
// non-blank one is used as typed.
func fallbackLabel(msgs []session.Message) string {
	raw := ""
	for _, m := range msgs {
		if m.Role != session.RoleUser || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if text := Fallback(m.Content); text != "" {
			return text
		}
		if raw == "" {
			raw = Truncate(strings.Join(strings.Fields(m.Content), " "), MaxLength)
		}
	}
	return raw
}

func formatTranscript(msgs []session.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}
