package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/postgres"
	"github.com/phrazzld/chorepoints/internal/service"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/spf13/cobra"
)

// dateLayout is the --as-of format.
const dateLayout = "2006-01-02"

type migrateResult struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Run database migrations",
		Long:      "Run the embedded goose migrations against the configured database. The default command is up.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if err := postgres.Migrate(cmd.Context(), e.db, command, e.logger); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, migrateResult{Command: command, Status: "ok"})
		},
	}
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate due instances of recurring tasks",
		Long: `Generate the instances of approved recurring templates that are due on the
given day. Running it twice for the same day creates no duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseAsOf(asOf)
			if err != nil {
				return err
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			gen, err := service.NewRecurringGenerator(
				postgres.NewPostgresTaskStore(e.db, e.logger), e.notifier(), e.logger, e.serviceOptions()...)
			if err != nil {
				return err
			}
			result, err := gen.RunRecurringGeneration(cmd.Context(), when)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, result)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "day to generate for, YYYY-MM-DD in UTC (default today)")
	return cmd
}

func newRemindCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send due-soon reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			reminders, err := service.NewReminderService(
				postgres.NewPostgresTaskStore(e.db, e.logger), e.notifier(), e.logger, e.serviceOptions()...)
			if err != nil {
				return err
			}
			result, err := reminders.SendDueSoonReminders(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, result)
		},
	}
}

func newAwardCmd(opts *rootOptions) *cobra.Command {
	var (
		actorID       string
		points        int
		reason        string
		authorityID   string
		authorityRole string
	)

	cmd := &cobra.Command{
		Use:   "award",
		Short: "Record a manual points adjustment",
		Long: `Append a manual adjustment to an actor's ledger. Points may be negative but
not zero. The authority must hold the award_points permission.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := uuid.Parse(actorID)
			if err != nil {
				return fmt.Errorf("invalid --actor: %w", err)
			}
			authority, err := parseActor(authorityID, authorityRole)
			if err != nil {
				return err
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ledger, err := e.ledgerService()
			if err != nil {
				return err
			}
			entry, err := ledger.AwardManualPoints(cmd.Context(), actor, points, reason, authority)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, entry)
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor receiving the adjustment")
	cmd.Flags().IntVar(&points, "points", 0, "signed number of points")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the ledger entry")
	cmd.Flags().StringVar(&authorityID, "authority", "", "actor recording the adjustment")
	cmd.Flags().StringVar(&authorityRole, "authority-role", string(domain.RoleAdvisor), "role of the authority")
	for _, name := range []string{"actor", "points", "reason", "authority"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSettleCmd(opts *rootOptions) *cobra.Command {
	var (
		weekStart     string
		weekEnd       string
		notes         string
		authorityID   string
		authorityRole string
	)

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a week and name its champion",
		Long: `Freeze the ranking of points earned in a week and notify the winner.
--week-end is the last day of the period, inclusive, and defaults to six days
after --week-start. Each week can be settled once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parsePeriod(weekStart, weekEnd)
			if err != nil {
				return err
			}
			authority, err := parseActor(authorityID, authorityRole)
			if err != nil {
				return err
			}

			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ledger, err := e.ledgerService()
			if err != nil {
				return err
			}
			settlement, err := ledger.SettleWeek(cmd.Context(), start, end, notes, authority)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, settlement)
		},
	}

	cmd.Flags().StringVar(&weekStart, "week-start", "", "first day of the week (YYYY-MM-DD)")
	cmd.Flags().StringVar(&weekEnd, "week-end", "", "last day of the week, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes stored with the settlement")
	cmd.Flags().StringVar(&authorityID, "authority", "", "actor settling the week")
	cmd.Flags().StringVar(&authorityRole, "authority-role", string(domain.RoleAdvisor), "role of the authority")
	for _, name := range []string{"week-start", "authority"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

type tokenResult struct {
	Token     string      `json:"token"`
	ActorID   uuid.UUID   `json:"actor_id"`
	Role      domain.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for an actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := parseActor(userID, role)
			if err != nil {
				return err
			}

			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(cmd.Context(), actor)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts.output, tokenResult{
				Token:     token,
				ActorID:   actor.ID,
				Role:      actor.Role,
				ExpiresAt: time.Now().UTC().Add(time.Duration(cfg.Auth.TokenLifetimeMinutes) * time.Minute).Truncate(time.Second),
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "actor id (a new one is generated when empty)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleMember), "actor role (advisor, parent, member)")
	return cmd
}

// parseActor builds an actor from flag values. An empty id generates one.
func parseActor(id, role string) (domain.Actor, error) {
	actor := domain.Actor{ID: uuid.New(), Role: domain.Role(role)}
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return domain.Actor{}, fmt.Errorf("invalid actor id %q: %w", id, err)
		}
		actor.ID = parsed
	}
	if !actor.Role.IsValid() {
		return domain.Actor{}, fmt.Errorf("invalid role %q (expected advisor, parent or member)", role)
	}
	return actor, nil
}

// parseAsOf parses --as-of. An empty value means today.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// parsePeriod turns an inclusive day range into the half-open [start, end)
// a settlement covers. An empty end means a full week.
func parsePeriod(startDay, endDay string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDay)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --week-start %q (expected YYYY-MM-DD): %w", startDay, err)
	}
	if endDay == "" {
		return start, start.AddDate(0, 0, 7), nil
	}
	end, err := time.Parse(dateLayout, endDay)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --week-end %q (expected YYYY-MM-DD): %w", endDay, err)
	}
	return start, end.AddDate(0, 0, 1), nil
}
