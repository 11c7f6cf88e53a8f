package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/luxquant/omnitron/core"
	"github.com/luxquant/omnitron/internal/logging"
	"github.com/luxquant/omnitron/tickets"
)

var (
	ticketUses     uint32
	ticketValidFor time.Duration
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage access tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create <username> <target>",
	Short: "Create an access ticket for a user and target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		var uses *uint32
		if cmd.Flags().Changed("uses") {
			uses = &ticketUses
		}
		var expiry *time.Time
		if ticketValidFor > 0 {
			t := time.Now().Add(ticketValidFor)
			expiry = &t
		}

		svc := tickets.NewService(repo, logging.New(cfg.LogLevel))
		ticket, err := svc.Create(cmd.Context(), args[0], args[1], uses, expiry)
		if err != nil {
			return err
		}

		fmt.Printf("Ticket %s created.\n", ticket.ID)
		fmt.Printf("Secret (shown only once): %s\n", ticket.Secret)
		return nil
	},
}

var ticketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		svc := tickets.NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
		records, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No tickets.")
			return nil
		}
		for _, rec := range records {
			uses := "unlimited"
			if rec.UsesLeft != nil {
				uses = fmt.Sprintf("%d left", *rec.UsesLeft)
			}
			expiry := "never expires"
			if rec.Expiry != nil {
				expiry = "expires " + rec.Expiry.Format(time.RFC3339)
			}
			fmt.Printf("%s  %s -> %s  (%s, %s)\n", rec.ID, rec.Username, rec.TargetName, uses, expiry)
		}
		return nil
	},
}

var ticketDeleteCmd = &cobra.Command{
	Use:   "delete <ticket-id>",
	Short: "Revoke a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid ticket id: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		svc := tickets.NewService(repo, logging.New(cfg.LogLevel))
		if err := svc.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Ticket %s deleted.\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketCreateCmd)
	ticketCmd.AddCommand(ticketListCmd)
	ticketCmd.AddCommand(ticketDeleteCmd)

	ticketCreateCmd.Flags().Uint32Var(&ticketUses, "uses", 1, "Number of redemptions allowed (omit for unlimited)")
	ticketCreateCmd.Flags().DurationVar(&ticketValidFor, "valid-for", 0, "Lifetime of the ticket, e.g. 24h (0 for no expiry)")
}
