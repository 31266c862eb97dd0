package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"PPDesk/module/chat/model"
	"PPDesk/service/chat"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := buildApp(appConfig, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	ticketID := args[0]
	p := newPrinter(cmd.OutOrStdout(), ticketID)
	unsub := a.sync.Subscribe(p.print)
	defer unsub()

	if err := a.sync.OpenConversation(ctx, ticketID); err != nil {
		return err
	}
	if text, _ := cmd.Flags().GetString("send"); strings.TrimSpace(text) != "" {
		if err := awaitConnected(ctx, a.sync, ticketID); err != nil {
			return err
		}
		if _, err := a.sync.SendMessage(ctx, ticketID, text); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
		}
	}
	<-ctx.Done()
	return nil
}

// awaitConnected 阻塞到 ticketID 的会话第一次进入 Connected，或 ctx 结束。
func awaitConnected(ctx context.Context, s *chat.Synchronizer, ticketID string) error {
	connected := make(chan struct{})
	var once sync.Once
	unsub := s.Subscribe(func(u model.Update) {
		if u.ConversationID == ticketID && u.State == model.StateConnected {
			once.Do(func() { close(connected) })
		}
	})
	defer unsub()
	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printer 只输出新出现或状态变化的消息。
type printer struct {
	w        io.Writer
	ticketID string
	seen     map[string]string
	state    model.SessionState
}

func newPrinter(w io.Writer, ticketID string) *printer {
	return &printer{w: w, ticketID: ticketID, seen: make(map[string]string)}
}

func (p *printer) print(u model.Update) {
	if u.ConversationID != p.ticketID {
		return
	}
	if u.State != p.state {
		p.state = u.State
		fmt.Fprintf(p.w, "-- %s\n", u.State)
	}
	for _, m := range u.Messages {
		line := formatMessage(m)
		if p.seen[m.ID] == line {
			continue
		}
		p.seen[m.ID] = line
		fmt.Fprintln(p.w, line)
	}
}

func formatMessage(m model.Message) string {
	flag := ""
	switch {
	case m.Error:
		flag = " [failed]"
	case m.Pending:
		flag = " [sending]"
	}
	who := m.UserName
	if who == "" {
		who = string(m.Origin)
	}
	return fmt.Sprintf("%s %-8s %s: %s%s", m.Timestamp.Local().Format("15:04:05"), m.Origin, who, m.Content, flag)
}
