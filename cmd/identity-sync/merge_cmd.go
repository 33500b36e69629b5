package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/identity-sync/internal/platform"
	"github.com/iota-uz/identity-sync/modules/identity"
	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/infrastructure/persistence"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/configuration"
)

type mergeOutput struct {
	Command     string `json:"command"`
	DryRun      bool   `json:"dry_run"`
	DurationMS  int64  `json:"duration_ms"`
	Outcome     string `json:"outcome"`
	Employments int    `json:"employments"`
	Notices     int    `json:"notices"`
	Persons     int    `json:"persons,omitempty"`
}

func newMergeCmd() *cobra.Command {
	var (
		newID  string
		oldIDs []string
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge records stored under superseded national ids into the current one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(newID) == "" || len(oldIDs) == 0 {
				return withCode(exitUsage, errors.New("--new and --old are required"))
			}

			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return withCode(exitUsage, err)
			}
			ctx := cmd.Context()

			pool, err := platform.ConnectDB(ctx, conf.Database)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			rdb, err := platform.ConnectRedis(ctx, conf.RedisURL)
			if err != nil {
				return withCode(exitDirectory, err)
			}
			defer func() { _ = rdb.Close() }()

			log := conf.Logger().WithField("command", "merge")
			dir, err := identity.NewDirectory(conf.Directory, rdb.Cmdable(), log)
			if err != nil {
				return withCode(exitUsage, err)
			}
			svc := services.NewReconciliationService(persistence.NewPostgresStore(pool), dir, log)

			start := time.Now()
			out := mergeOutput{Command: "merge", DryRun: !apply}
			if !apply {
				deps, err := svc.Preview(ctx, newID, oldIDs)
				if err != nil {
					return withCode(mergeExitCode(err), err)
				}
				out.Outcome = "preview"
				out.Employments = len(deps.Employments)
				out.Notices = len(deps.Notices)
				out.Persons = len(deps.Persons)
			} else {
				res, err := svc.MergeIdentity(ctx, newID, oldIDs)
				if err != nil {
					return withCode(mergeExitCode(err), err)
				}
				out.Outcome = res.Outcome.String()
				out.Employments = res.EmploymentCount
				out.Notices = res.NoticeCount
			}
			out.DurationMS = time.Since(start).Milliseconds()
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&newID, "new", "", "Current national id (required)")
	cmd.Flags().StringSliceVar(&oldIDs, "old", nil, "Superseded national ids, comma separated (required)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the merge (default dry-run)")
	return cmd
}

func mergeExitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvariantViolation):
		return exitValidation
	case errors.Is(err, domain.ErrNotFound):
		return exitDirectory
	case errors.Is(err, domain.ErrTransient):
		return exitTransient
	default:
		return exitDB
	}
}
