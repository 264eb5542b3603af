package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"charm.land/lipgloss/v2"

	"github.com/harunnryd/copydesk/internal/session"
)

type turnStyles struct {
	assistant lipgloss.Style
	content   lipgloss.Style
	pending   lipgloss.Style
	advisory  lipgloss.Style
	failure   lipgloss.Style
	saved     lipgloss.Style
	hint      lipgloss.Style
}

func newTurnStyles() turnStyles {
	return turnStyles{
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true),
		content:   lipgloss.NewStyle().PaddingLeft(2),
		pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		advisory:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failure:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		saved:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// REPL is the interactive chat loop. Turns are printed as the session
// appends them, so async results show up between prompts.
type REPL struct {
	components *RuntimeComponents
	in         *bufio.Reader
	out        io.Writer
	styles     turnStyles
	mu         sync.Mutex
	session    *session.Session
}

func NewREPL(components *RuntimeComponents, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		components: components,
		in:         bufio.NewReader(in),
		out:        out,
		styles:     newTurnStyles(),
	}
}

// Open creates the chat session, or resumes sessionID when set.
func (r *REPL) Open(ctx context.Context, sessionID string) error {
	configure := func(o *session.Options) {
		o.OnTurn = r.printTurn
	}
	var (
		s   *session.Session
		err error
	)
	if sessionID != "" {
		s, err = r.components.Sessions.Resume(ctx, sessionID, configure)
	} else {
		s, err = r.components.Sessions.Create(ctx, configure)
	}
	if err != nil {
		return err
	}
	r.session = s
	return nil
}

func (r *REPL) Start() error {
	if r.session == nil {
		if err := r.Open(r.components.Ctx, ""); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
	}

	r.println(r.styles.assistant.Render("Copydesk") + " session " + r.session.ID())
	r.println(r.styles.hint.Render("Describe the content you need. /help lists commands, /exit quits."))

	for {
		select {
		case <-r.components.Ctx.Done():
			return nil
		default:
		}
		if err := r.readLine(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			r.println(r.styles.failure.Render(err.Error()))
		}
	}
}

func (r *REPL) readLine() error {
	r.print("> ")
	text, err := r.in.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(text) == "") {
		return err
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil
	case text == "/exit" || text == "/quit":
		return io.EOF
	case r.components.Commands.CanHandle(text):
		out, cmdErr := r.components.Commands.Execute(r.components.Ctx, r.session, text)
		if out != "" {
			r.println(r.styles.hint.Render(out))
		}
		if cmdErr != nil && out == "" {
			return cmdErr
		}
		return nil
	}

	// The produced turns are printed by OnTurn.
	_, err = r.session.HandleInput(r.components.Ctx, text)
	return err
}

func (r *REPL) printTurn(t session.Turn) {
	if t.Role == session.RoleUser {
		return
	}
	r.println(r.formatTurn(t))
}

func (r *REPL) formatTurn(t session.Turn) string {
	switch t.Kind {
	case session.KindGenerating:
		return r.styles.pending.Render("… " + t.Text)
	case session.KindAdvisory:
		return r.styles.advisory.Render("! " + t.Text)
	case session.KindError:
		return r.styles.failure.Render("✗ " + t.Text)
	case session.KindSaved:
		return r.styles.saved.Render("✓ " + t.Text)
	case session.KindContent:
		var b strings.Builder
		header := t.Text
		if t.Item != nil {
			header = fmt.Sprintf("%s [%s]", t.Item.ContentType.Label(), t.Item.ID)
		}
		b.WriteString(r.styles.assistant.Render(header))
		if t.Item != nil {
			b.WriteString("\n")
			b.WriteString(r.styles.content.Render(t.Item.Body()))
		}
		if t.Caveat != "" {
			b.WriteString("\n")
			b.WriteString(r.styles.advisory.Render("! " + t.Caveat))
		}
		if len(t.Suggestions) > 0 {
			b.WriteString("\n")
			b.WriteString(r.styles.hint.Render("Next: " + strings.Join(t.Suggestions, " · ")))
		}
		return b.String()
	default:
		return r.styles.assistant.Render("copydesk: ") + t.Text
	}
}

func (r *REPL) print(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, s)
}

func (r *REPL) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}
