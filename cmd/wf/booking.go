package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/config"
	"github.com/zulandar/wayfare/internal/models"
)

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Trip invitation commands",
	}

	cmd.AddCommand(newBookingProposeCmd())
	cmd.AddCommand(newBookingAcceptCmd())
	cmd.AddCommand(newBookingRemoveCmd("decline", "Decline an invitation you received"))
	cmd.AddCommand(newBookingRemoveCmd("cancel", "Cancel an invitation you sent"))
	cmd.AddCommand(newBookingShowCmd())
	return cmd
}

func newBookingProposeCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
		to    string
		tier  string
		seen  string
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Invite another party on a trip",
		Long: `Creates a pending invitation from --as to --to for the given tier.

Any pending invitation between the two parties is replaced; an active
booking is never replaced. Pass --seen with the booking id you were last
shown for the pair to refuse proposing over it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			opts := booking.ProposeOpts{Self: as, Other: to, Tier: tier}
			if seen != "" {
				opts.Seen = &models.Booking{ID: seen}
			}
			b, err := newManager(cfg, gormDB).Propose(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Proposed booking %s\n", b.ID)
			printBooking(cmd.OutOrStdout(), cfg, b, as)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	cmd.Flags().StringVar(&to, "to", "", "party to invite (required)")
	cmd.Flags().StringVar(&tier, "tier", "", "trip tier id (required)")
	cmd.Flags().StringVar(&seen, "seen", "", "booking id currently shown for the pair")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("tier")
	return cmd
}

func newBookingAcceptCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   "accept <booking-id>",
		Short: "Accept an invitation you received and start the chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			b, err := newManager(cfg, gormDB).Accept(context.Background(), args[0], as)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted booking %s\n", b.ID)
			printBooking(cmd.OutOrStdout(), cfg, b, as)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

// newBookingRemoveCmd builds decline and cancel, which differ only in the
// manager call.
func newBookingRemoveCmd(name, short string) *cobra.Command {
	var (
		flags configFlags
		as    string
	)

	cmd := &cobra.Command{
		Use:   name + " <booking-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			mgr := newManager(cfg, gormDB)
			remove := mgr.Cancel
			if name == "decline" {
				remove = mgr.Decline
			}
			if err := remove(context.Background(), args[0], as); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed booking %s\n", args[0])
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	return cmd
}

func newBookingShowCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
		with  string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the booking between you and another party",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(&flags)
			if err != nil {
				return err
			}
			b, err := newManager(cfg, gormDB).ForPair(context.Background(), as, with)
			if err != nil {
				return err
			}
			if b == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No booking with %s\n", with)
				return nil
			}
			printBooking(cmd.OutOrStdout(), cfg, b, as)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	cmd.Flags().StringVar(&with, "with", "", "the other party (required)")
	cmd.MarkFlagRequired("with")
	return cmd
}

func printBooking(w io.Writer, cfg *config.Config, b *models.Booking, party string) {
	fmt.Fprintf(w, "  ID:      %s\n", b.ID)
	fmt.Fprintf(w, "  With:    %s\n", b.Counterpart(party))
	fmt.Fprintf(w, "  Tier:    %s\n", b.Tier)
	fmt.Fprintf(w, "  Status:  %s\n", b.Status)
	fmt.Fprintf(w, "  Role:    %s\n", booking.RoleOf(b, party))
	fmt.Fprintf(w, "  Chat:    %s\n", chat.Remaining(b, timeNow(), cfg.Chat.TTL))
}
