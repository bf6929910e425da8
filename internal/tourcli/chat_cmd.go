// chat_cmd.go — the interactive tourchat chat command.
package tourcli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tourdesk/tourdesk/chatsync"
	"github.com/tourdesk/tourdesk/libtracker"
)

var chatCmd = &cobra.Command{
	Use:   "chat <room-id>",
	Short: "Join a room: live messages in, lines from stdin out.",
	Long: `Join a room interactively. Plain lines are sent as messages; slash
commands operate on existing ones:

  /edit <message-id> <text>     rewrite one of your messages
  /delete <message-id>          remove one of your messages
  /attach <path> [caption]      upload a file and send it
  /retry <n>                    resend a failed message by its # number
  /discard <n>                  drop a failed message
  /quit                         leave the room`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

// timelinePrinter appends changed timeline rows to stdout. It keys rows by
// message identity so confirmations and edits reprint the row instead of
// duplicating it.
type timelinePrinter struct {
	mu   sync.Mutex
	seen map[string]string
}

func newTimelinePrinter() *timelinePrinter {
	return &timelinePrinter{seen: map[string]string{}}
}

func entryKey(e chatsync.Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return "tmp:" + strconv.FormatUint(e.TempID, 10)
}

func (p *timelinePrinter) flush(entries []chatsync.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	current := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := entryKey(e)
		current[key] = struct{}{}
		line := renderEntry(e, now)
		if p.seen[key] == line {
			continue
		}
		p.seen[key] = line
		fmt.Println(line)
	}
	for key := range p.seen {
		if _, ok := current[key]; !ok {
			delete(p.seen, key)
			fmt.Println("(a message was deleted)")
		}
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	sdk, err := newSDK(s)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(libtracker.WithNewRequestID(cmd.Context()))
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nLeaving room...")
		cancel()
	}()

	printer := newTimelinePrinter()
	var sessionRef atomic.Pointer[chatsync.Session]

	engine, cleanup, err := startEngine(ctx, s, sdk, chatsync.Handlers{
		OnTimelineChanged: func(conversationID string) {
			if sess := sessionRef.Load(); sess != nil {
				printer.flush(sess.Timeline())
			}
		},
		OnConversationDeleted: func(conversationID string) {
			fmt.Println("This room was deleted.")
			cancel()
		},
	})
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := engine.Open(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	sessionRef.Store(session)
	printer.flush(session.Timeline())
	fmt.Printf("-- joined as %s, /quit to leave --\n", s.Identity)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if err := handleChatLine(ctx, session, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

// handleChatLine dispatches one stdin line: a slash command or a plain send.
func handleChatLine(ctx context.Context, session *chatsync.Session, line string) error {
	if !strings.HasPrefix(line, "/") {
		_, err := session.Send(ctx, line)
		return err
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/edit":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /edit <message-id> <text>")
		}
		return session.Edit(ctx, fields[1], strings.Join(fields[2:], " "))
	case "/delete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /delete <message-id>")
		}
		return session.Delete(ctx, fields[1])
	case "/attach":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /attach <path> [caption]")
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		caption := strings.Join(fields[2:], " ")
		_, err = session.SendAttachment(ctx, filepath.Base(fields[1]), http.DetectContentType(data), data, caption)
		return err
	case "/retry":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /retry <n>")
		}
		tempID, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("not a message number: %q", fields[1])
		}
		return session.Retry(ctx, tempID)
	case "/discard":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /discard <n>")
		}
		tempID, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("not a message number: %q", fields[1])
		}
		return session.Discard(tempID)
	case "/help":
		fmt.Println("/edit <message-id> <text>, /delete <message-id>, /attach <path> [caption], /retry <n>, /discard <n>, /quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q (/help lists commands)", fields[0])
	}
}
