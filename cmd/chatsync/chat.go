package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/santipan2003/palmtagram-chatsync/internal/engine"
	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/transport"
)

// typingIdle is how long after the last keystroke the typing indicator stays up.
const typingIdle = 2 * time.Second

func newChatCmd(setup func() (*cliEnv, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <roomID>",
		Short: "Join a room and chat interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			defer env.close()

			if _, err := requireCredentials(cmd, env); err != nil {
				return err
			}

			client := env.restClient(cmd)
			e := engine.New(engine.Options{
				API:               client,
				Store:             env.store,
				Logger:            env.logger,
				SocketURL:         env.cfg.SocketURL,
				DialTimeout:       env.cfg.DialTimeout,
				RequestTimeout:    env.cfg.RequestTimeout,
				ReconnectAttempts: env.cfg.ReconnectAttempts,
				ReconnectDelay:    env.cfg.ReconnectDelay,
			})

			return runChat(cmd.Context(), cmd, e, args[0])
		},
	}
}

func runChat(parent context.Context, cmd *cobra.Command, e *engine.Engine, roomID string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s, err := e.Connect(ctx, engine.Room(roomID))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Joined room %s as %s. Type messages and press Enter. Ctrl+C to exit.\n",
		roomID, s.Self().Username)

	go watchNotices(ctx, cancel, e, out)
	go renderLoop(ctx, s, out)

	return inputLoop(ctx, cancel, s)
}

// watchNotices surfaces connection banners and toasts; a redirect ends the
// session since a terminal client has nowhere to navigate but out.
func watchNotices(ctx context.Context, cancel context.CancelFunc, e *engine.Engine, out io.Writer) {
	for {
		select {
		case n := <-e.Notices():
			switch n.Kind {
			case engine.NoticeConnState:
				switch n.ConnState {
				case transport.StateDisconnected:
					fmt.Fprintln(out, "-- connection lost, reconnecting...")
				case transport.StateConnected:
					fmt.Fprintln(out, "-- connected")
				case transport.StateError:
					fmt.Fprintln(out, "-- connection failed")
					cancel()
				}
			case engine.NoticeToast:
				fmt.Fprintf(out, "-- %s\n", n.Text)
			case engine.NoticeRedirect:
				fmt.Fprintf(out, "-- %s\n", n.Text)
				cancel()
			case engine.NoticeRoomActivity:
				fmt.Fprintf(out, "-- %s\n", n.Text)
			}
		case <-ctx.Done():
			return
		}
	}
}

// renderLoop polls the session snapshot and prints what changed. Printed
// messages count as viewed: each batch is reported read, which zeroes the
// room's unread badge. Self-authored and already-read ids are filtered by
// the session.
func renderLoop(ctx context.Context, s *engine.Session, out io.Writer) {
	printed := make(map[string]struct{})
	var lastTypingLine string

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			msgs, err := s.Messages()
			if err != nil {
				return
			}
			var viewed []string
			for _, msg := range msgs {
				if _, done := printed[msg.ID]; done {
					continue
				}
				printed[msg.ID] = struct{}{}
				viewed = append(viewed, msg.ID)
				fmt.Fprintln(out, formatMessage(msg))
			}
			if len(viewed) > 0 {
				_ = s.MarkAsRead(ctx, viewed)
			}

			typing, err := s.TypingUsers()
			if err != nil {
				return
			}
			line := typingLine(typing)
			if line != lastTypingLine {
				lastTypingLine = line
				if line != "" {
					fmt.Fprintln(out, line)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func formatMessage(msg proto.Message) string {
	sender := "system"
	if msg.Sender != nil {
		sender = msg.Sender.Username
		if msg.Sender.Profile != nil && msg.Sender.Profile.Name != "" {
			sender = msg.Sender.Profile.Name
		}
	}
	return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format("15:04:05"), sender, msg.Content)
}

func typingLine(typing []engine.TypingUser) string {
	if len(typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(typing))
	for _, u := range typing {
		name := u.Name
		if name == "" {
			name = u.Username
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		return fmt.Sprintf("-- %s is typing...", names[0])
	}
	return fmt.Sprintf("-- %s are typing...", strings.Join(names, ", "))
}

// inputLoop reads lines from stdin and sends them. Each line counts as typing
// activity; the indicator drops after two idle seconds.
func inputLoop(ctx context.Context, cancel context.CancelFunc, s *engine.Session) error {
	var idleTimer *time.Timer

	markActivity := func() {
		_ = s.SendTyping(ctx, true)
		if idleTimer != nil {
			idleTimer.Stop()
		}
		idleTimer = time.AfterFunc(typingIdle, func() {
			_ = s.SendTyping(context.Background(), false)
		})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	defer func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				cancel()
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			markActivity()
			if err := s.Send(ctx, text, proto.MessageTypeText); err != nil {
				// The failure toast already went to the notice stream.
				continue
			}
		case <-ctx.Done():
			return nil
		}
	}
}
