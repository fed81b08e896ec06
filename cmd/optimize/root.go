package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/optimizer"
	"github.com/jstittsworth/cricket-optimizer/internal/scoring"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
	"github.com/jstittsworth/cricket-optimizer/internal/store"
	"github.com/jstittsworth/cricket-optimizer/pkg/logger"
)

type options struct {
	csvPath  string
	budget   float64
	strategy string
	teamSize int
	ids      []uint
	locked   []uint
	excluded []uint
	roles    map[string]int
	output   string
	timeout  time.Duration
	maxNodes int
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Pick the best cricket XI from a CSV player pool",
		Long: `Reads players from a CSV file, scores them and selects a team that
maximizes total score (MAX_SCORE) or the sum of score per price
(MAX_SCORE_PER_COST) without exceeding the budget.`,
		Example: `  optimize --budget 153
  optimize --csv players.csv --budget 250 --strategy max_score_per_cost --roles WK=1,BAT=4,BOWL=3,ALL=3`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.csvPath, "csv", "data/players.csv", "player CSV file")
	flags.Float64Var(&opts.budget, "budget", 0, "total budget (required)")
	flags.StringVar(&opts.strategy, "strategy", string(optimizer.StrategyMaxScore), "MAX_SCORE or MAX_SCORE_PER_COST")
	flags.IntVar(&opts.teamSize, "team-size", optimizer.DefaultTeamSize, "number of players to select")
	flags.UintSliceVar(&opts.ids, "ids", nil, "restrict the pool to these player ids")
	flags.UintSliceVar(&opts.locked, "lock", nil, "player ids that must be selected")
	flags.UintSliceVar(&opts.excluded, "exclude", nil, "player ids that must not be selected")
	flags.StringToIntVar(&opts.roles, "roles", nil, "exact role composition, e.g. WK=1,BAT=4,BOWL=3,ALL=3")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table, json or csv")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "solve deadline")
	flags.IntVar(&opts.maxNodes, "max-nodes", solver.DefaultOptions().MaxNodes, "branch-and-bound node limit")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("budget")

	return cmd
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.InitLogger(opts.logLevel, false)
	log.SetOutput(os.Stderr)

	strategy, err := optimizer.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}
	roles, err := parseRoleFlags(opts.roles)
	if err != nil {
		return err
	}
	switch opts.output {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	players, err := store.NewCSVStore(opts.csvPath).LoadPlayers(ctx)
	if err != nil {
		return err
	}
	pool := scoring.ScorePlayers(players)

	solverOpts := solver.DefaultOptions()
	solverOpts.MaxNodes = opts.maxNodes
	entry := log.WithField("component", "cli")
	opt := optimizer.New(solver.NewDefault(solverOpts, entry), entry)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	res, err := opt.Optimize(ctx, pool, optimizer.Request{
		Budget:            opts.budget,
		Strategy:          strategy,
		TeamSize:          opts.teamSize,
		PlayerIDs:         opts.ids,
		RoleConstraints:   roles,
		LockedPlayerIDs:   opts.locked,
		ExcludedPlayerIDs: opts.excluded,
	})
	if err != nil {
		return err
	}

	switch opts.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "csv":
		return store.WritePlayers(out, res.Players)
	}
	return writeTable(out, res)
}

func parseRoleFlags(raw map[string]int) (map[models.Role]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	roles := make(map[models.Role]int, len(raw))
	for k, n := range raw {
		r, err := models.ParseRole(k)
		if err != nil {
			return nil, &optimizer.ValidationError{Field: "roles", Message: err.Error()}
		}
		roles[r] += n
	}
	return roles, nil
}

func writeTable(out io.Writer, res *optimizer.Result) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tRUNS\tWKTS\tSR\tPRICE\tSCORE")
	for _, p := range res.Players {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%.1f\t%.2f\t%.2f\n",
			p.ID, p.Name, p.Role, p.Runs, p.Wickets, p.StrikeRate, p.Price, p.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := make([]string, 0, len(models.Roles))
	for _, r := range models.Roles {
		counts = append(counts, fmt.Sprintf("%s=%d", r, res.RoleCounts[r]))
	}

	fmt.Fprintf(out, "\nStrategy:   %s\n", res.Strategy)
	fmt.Fprintf(out, "Total cost: %.2f of %.2f (%.2f left)\n", res.TotalCost, res.Budget, res.BudgetRemaining)
	fmt.Fprintf(out, "Score:      %.2f\n", res.TotalScore)
	fmt.Fprintf(out, "Roles:      %s\n", strings.Join(counts, " "))
	if res.NodesExplored > 0 {
		_, err := fmt.Fprintf(out, "Solved in %dms (%d nodes)\n", res.SolveTimeMs, res.NodesExplored)
		return err
	}
	_, err := fmt.Fprintf(out, "Solved in %dms\n", res.SolveTimeMs)
	return err
}
