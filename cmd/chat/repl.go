package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ceylontrails/tourchat/internal/client/auth"
	"github.com/ceylontrails/tourchat/internal/client/guest"
	"github.com/ceylontrails/tourchat/internal/client/session"
	"github.com/ceylontrails/tourchat/internal/model/chat"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  /join <id>      bind a conversation and load its history
  /leave          unbind the current conversation
  /new [title]    create a conversation and join it
  /list           list your conversations
  /delete <id>    delete a conversation
  /history        print the current transcript
  /lang <code>    change the reply language
  /status         show connection state
  /forget         discard the stored guest id
  /quit           exit
anything else is sent as a message`

// printer serializes writes from the renderer and the input loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name rest". ok is false for plain messages.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

type repl struct {
	coord *session.Coordinator
	sess  *auth.Session
	guest *guest.Identity
	out   *printer
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.out.printf("type /help for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := r.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) error {
	cmd, isCommand := parseCommand(line)
	if !isCommand {
		r.coord.SetDraft(line)
		r.coord.SendDraft(ctx)
		return nil
	}

	switch cmd.name {
	case "quit", "exit":
		return errQuit
	case "help":
		r.out.printf("%s\n", helpText)
	case "join":
		if cmd.arg == "" {
			r.out.printf("usage: /join <id>\n")
			return nil
		}
		if err := r.coord.Bind(ctx, cmd.arg); err != nil {
			r.out.printf("! %v\n", err)
		}
	case "leave":
		r.coord.Unbind()
		r.out.printf("left conversation\n")
	case "new":
		conv, err := r.coord.CreateConversation(ctx, cmd.arg)
		if err != nil {
			r.out.printf("! %v\n", err)
			return nil
		}
		r.out.printf("created %s (%s)\n", conv.ID, conv.Title)
		if err := r.coord.Bind(ctx, conv.ID); err != nil {
			r.out.printf("! %v\n", err)
		}
	case "list":
		if err := r.coord.RefreshConversations(ctx); err != nil {
			r.out.printf("! %v\n", err)
			return nil
		}
		r.printConversations(r.coord.Conversations())
	case "delete":
		if cmd.arg == "" {
			r.out.printf("usage: /delete <id>\n")
			return nil
		}
		if err := r.coord.DeleteConversation(ctx, cmd.arg); err != nil {
			r.out.printf("! %v\n", err)
			return nil
		}
		r.out.printf("deleted %s\n", cmd.arg)
	case "history":
		for _, m := range r.coord.Messages() {
			r.out.printf("%s", formatTurn(m))
		}
	case "lang":
		if cmd.arg == "" {
			r.out.printf("usage: /lang <code>\n")
			return nil
		}
		r.coord.SetLanguage(cmd.arg)
	case "status":
		r.out.printf("state=%s signed_in=%t conversation=%q\n",
			r.coord.State(), r.sess.Authenticated(), r.coord.ConversationID())
	case "forget":
		if err := r.guest.Clear(); err != nil {
			r.out.printf("! %v\n", err)
			return nil
		}
		r.out.printf("guest id cleared, the next guest message starts a new session\n")
	default:
		r.out.printf("unknown command /%s, try /help\n", cmd.name)
	}
	return nil
}

func (r *repl) printConversations(list []chat.Conversation) {
	if len(list) == 0 {
		r.out.printf("no conversations\n")
		return
	}
	current := r.coord.ConversationID()
	for _, c := range list {
		marker := " "
		if c.ID == current {
			marker = "*"
		}
		r.out.printf("%s %s  %s  (%s)\n", marker, c.ID, c.Title, c.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

func formatTurn(m chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "you> %s\n", m.RequestText)
	switch {
	case m.Failed:
		fmt.Fprintf(&b, "  ! %s\n", m.ResponseText)
	case m.Pending:
		b.WriteString("  ...\n")
	default:
		fmt.Fprintf(&b, "guide> %s\n", m.ResponseText)
	}
	return b.String()
}

// renderer prints replies and status changes as the coordinator reports
// them.
type renderer struct {
	coord     *session.Coordinator
	out       *printer
	printed   map[string]bool
	typing    bool
	connected bool
	lastErr   error
}

func newRenderer(coord *session.Coordinator, out *printer) *renderer {
	return &renderer{coord: coord, out: out, printed: make(map[string]bool)}
}

func (r *renderer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.coord.Updates():
			r.render()
		}
	}
}

func (r *renderer) render() {
	if connected := r.coord.Connected(); connected != r.connected {
		r.connected = connected
		if connected {
			r.out.printf("* realtime connected\n")
		} else {
			r.out.printf("* realtime disconnected\n")
		}
	}

	if err := r.coord.LastError(); err != nil && err != r.lastErr {
		r.lastErr = err
		r.out.printf("! %v\n", err)
	}

	for _, m := range r.coord.Messages() {
		key := turnKey(m)
		if !m.Resolved() || r.printed[key] {
			continue
		}
		r.printed[key] = true
		if m.Failed {
			r.out.printf("  ! %s\n", m.ResponseText)
			continue
		}
		r.out.printf("guide> %s\n", m.ResponseText)
		if len(m.Suggestions) > 0 {
			r.out.printf("  try: %s\n", strings.Join(m.Suggestions, " | "))
		}
	}

	if typing := r.coord.AssistantTyping(); typing != r.typing {
		r.typing = typing
		if typing {
			r.out.printf("  (guide is typing...)\n")
		}
	}
}

func turnKey(m chat.Message) string {
	if m.ClientID != "" {
		return m.ClientID
	}
	return m.ID
}
