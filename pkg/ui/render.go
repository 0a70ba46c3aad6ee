package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/rs/zerolog/log"
)

const contextPreviewLen = 100

// FormatFooter renders the time and processing time line below a message.
func FormatFooter(m session.Message) string {
	parts := []string{m.CreatedAt.Format("15:04")}
	if m.ProcessingSeconds != nil {
		parts = append(parts, fmt.Sprintf("%.2fs", *m.ProcessingSeconds))
	}
	return strings.Join(parts, " · ")
}

// FormatContext collapses the retrieved context to a single truncated line.
func FormatContext(snippet string) string {
	line := strings.Join(strings.Fields(snippet), " ")
	if line == "" {
		return ""
	}
	runes := []rune(line)
	if len(runes) > contextPreviewLen {
		line = string(runes[:contextPreviewLen]) + "..."
	}
	return "Context used: " + line
}

type renderer struct {
	styles styles
	width  int
	md     *glamour.TermRenderer
}

func newRenderer(s styles, width int) *renderer {
	r := &renderer{styles: s}
	r.resize(width)
	return r
}

func (r *renderer) resize(width int) {
	if width <= 0 {
		width = 80
	}
	if r.md != nil && width == r.width {
		return
	}
	r.width = width
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		log.Warn().Err(err).Str("component", "ui").Msg("markdown renderer unavailable")
		r.md = nil
		return
	}
	r.md = md
}

func (r *renderer) markdown(content string) string {
	if r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (r *renderer) message(m session.Message) string {
	var b strings.Builder
	switch m.Role {
	case session.RoleUser:
		b.WriteString(r.styles.UserLabel.Render("You"))
		b.WriteString("\n")
		b.WriteString(r.styles.UserBody.Render(m.Content))
	default:
		b.WriteString(r.styles.AssistantName.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(r.markdown(m.Content))
		if ctx := FormatContext(m.ContextSnippet); ctx != "" {
			b.WriteString("\n")
			b.WriteString(r.styles.Context.Render(ctx))
		}
	}
	b.WriteString("\n")
	b.WriteString(r.styles.Footer.Render(FormatFooter(m)))
	return b.String()
}

func (r *renderer) transcript(messages []session.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, r.message(m))
	}
	return strings.Join(blocks, "\n\n")
}
