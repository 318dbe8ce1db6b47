package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/models"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ephemeral chat commands for an active booking",
	}

	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatListCmd())
	cmd.AddCommand(newChatUnsendCmd())
	cmd.AddCommand(newChatHideCmd())
	cmd.AddCommand(newChatClearCmd())
	cmd.AddCommand(newChatRemainingCmd())
	cmd.AddCommand(newChatWatchCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "send <booking-id> <text>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			msg, err := newMessages(cfg, gormDB, nil).Send(context.Background(), args[0], as, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d\n", msg.ID)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newChatListCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "list <booking-id>",
		Short: "List the messages visible to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			msgs, err := newMessages(cfg, gormDB, nil).ListVisible(context.Background(), args[0], as)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tSENT\tMESSAGE")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.SenderID, m.CreatedAt.Local().Format("15:04"), m.Content)
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newChatUnsendCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "unsend <message-id>",
		Short: "Delete one of your messages for both parties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			if err := newMessages(cfg, gormDB, nil).DeleteForEveryone(context.Background(), id, as); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted message %d for everyone\n", id)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newChatHideCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "hide <message-id>",
		Short: "Delete a message for yourself only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			if _, err := newMessages(cfg, gormDB, nil).DeleteForMe(context.Background(), id, as); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Hid message %d\n", id)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newChatClearCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "clear <booking-id>",
		Short: "Clear the chat history for yourself",
		Long:  "Hides every message sent up to now from your view. The other party's view is unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			at, err := newMessages(cfg, gormDB, nil).ClearForViewer(context.Background(), args[0], as)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared chat as of %s\n", at.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newChatRemainingCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "remaining <booking-id>",
		Short: "Show how long the chat stays open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			b, err := newManager(cfg, gormDB).Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !b.HasParty(as) {
				return apperr.NotFound("chat: remaining "+args[0], "booking not found")
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.Remaining(b, timeNow(), cfg.Chat.TTL))
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func parseMessageID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return uint(n), nil
}

func printMessage(w io.Writer, m models.Message) {
	fmt.Fprintf(w, "[%s] #%d %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.ID, m.SenderID, m.Content)
}
