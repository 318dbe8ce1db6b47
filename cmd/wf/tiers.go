package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/identity"
)

func newTiersCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "List the trip tiers that can be proposed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tTAG\tFEATURES")
			for _, t := range cfg.Tiers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Price, t.Tag, strings.Join(t.Features, ", "))
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a party",
		Long:  "Signs an HS256 bearer token for --as with server.jwt_secret, for use against the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			v, err := identity.NewVerifier(cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := v.Issue(as, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}
