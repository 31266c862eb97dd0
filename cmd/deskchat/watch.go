package main

import (
	"fmt"

	"PPDesk/module/chat/model"
	"PPDesk/service/natsx"
	"PPDesk/tools/errs"

	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, args []string) error {
	nc, ok := appConfig.NatsConfig()
	if !ok {
		return errs.ErrArgs.WrapMsg("nats is not enabled (nats.enabled / DESK_NATS_ENABLED)")
	}
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	client, err := natsx.Connect(nc)
	if err != nil {
		return err
	}
	defer client.Close()

	ticketID := ""
	if len(args) == 1 {
		ticketID = args[0]
	}
	out := cmd.OutOrStdout()
	sub, err := natsx.Watch(client, appConfig.Nats.SubjectPrefix, ticketID, func(subject string, u model.Update) {
		fmt.Fprintf(out, "%s rev=%d state=%s messages=%d\n", subject, u.Revision, u.State, len(u.Messages))
		if n := len(u.Messages); n > 0 {
			fmt.Fprintln(out, "  "+formatMessage(u.Messages[n-1]))
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	<-ctx.Done()
	return nil
}
