package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/spf13/cobra"
)

// startFlags are shared by start and log.
type startFlags struct {
	at         string
	kind       string
	bottleType string
	volume     int
}

func (f *startFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.at, "at", "", "start time (RFC 3339, default now)")
	cmd.Flags().StringVar(&f.kind, "type", "", "diaper type (pee|poo|both) or feeding type (breast_left|breast_right|bottle|solids)")
	cmd.Flags().StringVar(&f.bottleType, "bottle", "", "bottle contents (formula|breast_milk|cow_milk)")
	cmd.Flags().IntVar(&f.volume, "volume", 0, "bottle volume in ml")
}

func (f *startFlags) request(category action.Category) (action.StartRequest, error) {
	req := action.StartRequest{Category: category}
	if f.at != "" {
		at, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return req, WrapExitError(ExitCommandError, "--at must be RFC 3339", err)
		}
		req.StartDate = &at
	}
	switch category {
	case action.CategoryDiaper:
		req.DiaperType = action.DiaperType(f.kind)
	case action.CategoryFeeding:
		req.FeedingType = action.FeedingType(f.kind)
		req.BottleType = action.BottleType(f.bottleType)
	}
	if f.volume > 0 {
		v := f.volume
		req.BottleVolume = &v
	}
	return req, nil
}

func parseCategory(raw string) (action.Category, error) {
	c, err := action.ParseCategory(strings.ToLower(raw))
	if err != nil {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("unknown category %q: use sleep, feeding or diaper", raw))
	}
	return c, nil
}

type actionResult struct {
	Action action.Snapshot `json:"action"`
}

func (r actionResult) Text() string {
	return formatSnapshot(r.Action, time.Now()) + "\n"
}

type changedResult struct {
	Changed bool   `json:"changed"`
	Verb    string `json:"-"`
}

func (r changedResult) Text() string {
	if r.Changed {
		return r.Verb + ".\n"
	}
	return "Nothing to do.\n"
}

// NewStartCommand creates the start command.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	var flags startFlags
	cmd := &cobra.Command{
		Use:   "start <profile> <sleep|feeding>",
		Short: "Start a sleep or feeding",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			category, err := parseCategory(args[1])
			if err != nil {
				return err
			}
			if category.IsInstant() {
				return NewExitError(ExitCommandError, fmt.Sprintf("%s is logged, not started: use lullabyctl log", category))
			}
			return startAction(cmd, a, args[0], category, &flags)
		}),
	}
	flags.register(cmd)
	return cmd
}

// NewLogCommand creates the log command for instant actions.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	var flags startFlags
	cmd := &cobra.Command{
		Use:   "log <profile> [diaper]",
		Short: "Log a diaper change",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			category := action.CategoryDiaper
			if len(args) == 2 {
				c, err := parseCategory(args[1])
				if err != nil {
					return err
				}
				if !c.IsInstant() {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s has a duration: use lullabyctl start", c))
				}
				category = c
			}
			return startAction(cmd, a, args[0], category, &flags)
		}),
	}
	flags.register(cmd)
	return cmd
}

func startAction(cmd *cobra.Command, a *app, profileID string, category action.Category, flags *startFlags) error {
	ctx := a.ctx(cmd)
	if _, err := a.requireProfile(ctx, profileID); err != nil {
		return err
	}
	req, err := flags.request(category)
	if err != nil {
		return err
	}
	snap, err := a.store.StartAction(ctx, profileID, req)
	if err != nil {
		return err
	}
	return a.out.Success(actionResult{Action: snap})
}

// NewStopCommand creates the stop command.
func NewStopCommand(opts *RootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "stop <profile> [category]",
		Short: "Stop a running action by category or --id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}
			var (
				changed bool
				err     error
			)
			switch {
			case id != "":
				changed, err = a.store.StopActionByID(ctx, args[0], id)
			case len(args) == 2:
				category, perr := parseCategory(args[1])
				if perr != nil {
					return perr
				}
				changed, err = a.store.StopAction(ctx, args[0], category)
			default:
				return NewExitError(ExitCommandError, "a category or --id is required")
			}
			if err != nil {
				return err
			}
			return a.out.Success(changedResult{Changed: changed, Verb: "Stopped"})
		}),
	}
	cmd.Flags().StringVar(&id, "id", "", "action id")
	return cmd
}

// NewContinueCommand creates the continue command.
func NewContinueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "continue <profile> <action-id>",
		Short: "Reopen a finished action",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}
			changed, err := a.store.ContinueAction(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return a.out.Success(changedResult{Changed: changed, Verb: "Continued"})
		}),
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile> <action-id>",
		Short: "Delete an action",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}
			changed, err := a.store.DeleteAction(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return a.out.Success(changedResult{Changed: changed, Verb: "Deleted"})
		}),
	}
}

type stateResult struct {
	ProfileID string            `json:"profile_id"`
	Active    []action.Snapshot `json:"active"`
	History   []action.Snapshot `json:"history"`
	now       time.Time
}

func newStateResult(profileID string, state action.ProfileState, now time.Time) stateResult {
	r := stateResult{ProfileID: profileID, Active: []action.Snapshot{}, History: state.History, now: now}
	if r.History == nil {
		r.History = []action.Snapshot{}
	}
	for _, c := range action.Categories {
		if snap, ok := state.Active[c]; ok {
			r.Active = append(r.Active, snap)
		}
	}
	return r
}

func (r stateResult) Text() string {
	var b strings.Builder
	b.WriteString("Active:\n")
	if len(r.Active) == 0 {
		b.WriteString("  none\n")
	}
	for _, s := range r.Active {
		b.WriteString("  " + formatSnapshot(s, r.now) + "\n")
	}
	b.WriteString("History:\n")
	if len(r.History) == 0 {
		b.WriteString("  none\n")
	}
	for _, s := range r.History {
		b.WriteString("  " + formatSnapshot(s, r.now) + "\n")
	}
	return b.String()
}

// NewStateCommand creates the state command.
func NewStateCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "state <profile>",
		Short: "Show running actions and history",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}
			state, err := a.store.State(ctx, args[0])
			if err != nil {
				return err
			}
			result := newStateResult(args[0], state, time.Now())
			if limit > 0 && len(result.History) > limit {
				result.History = result.History[:limit]
			}
			return a.out.Success(result)
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "history entries to show (0 for all)")
	return cmd
}

func formatSnapshot(s action.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %s  %s", s.Category, s.ID, s.StartDate.Local().Format("2006-01-02 15:04"))
	switch {
	case s.Category.IsInstant():
	case s.EndDate == nil:
		fmt.Fprintf(&b, " running %s", s.Duration(now).Round(time.Minute))
	default:
		fmt.Fprintf(&b, " for %s", s.Duration(now).Round(time.Minute))
	}

	var details []string
	for _, d := range []string{string(s.DiaperType), string(s.FeedingType), string(s.BottleType)} {
		if d != "" {
			details = append(details, d)
		}
	}
	if s.BottleVolume != nil {
		details = append(details, fmt.Sprintf("%dml", *s.BottleVolume))
	}
	if s.Location != nil && s.Location.PlaceName != "" {
		details = append(details, "@ "+s.Location.PlaceName)
	}
	if len(details) > 0 {
		b.WriteString("  " + strings.Join(details, " "))
	}
	return b.String()
}
