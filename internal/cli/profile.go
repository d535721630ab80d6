package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/spf13/cobra"
)

type profileList []profile.Profile

func (l profileList) Text() string {
	if len(l) == 0 {
		return "No profiles.\n"
	}
	var b strings.Builder
	for _, p := range l {
		fmt.Fprintf(&b, "%s\t%s", p.ID, p.Name)
		if p.BirthDate != nil {
			fmt.Fprintf(&b, "\tborn %s", p.BirthDate.Format(time.DateOnly))
		}
		b.WriteString("\n")
	}
	return b.String()
}

type profileResult struct {
	*profile.Profile
}

func (r profileResult) Text() string {
	return fmt.Sprintf("%s\t%s\n", r.ID, r.Name)
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage child profiles",
	}
	cmd.AddCommand(newProfileAddCommand(opts))
	cmd.AddCommand(newProfileListCommand(opts))
	cmd.AddCommand(newProfileRenameCommand(opts))
	return cmd
}

func newProfileAddCommand(opts *RootOptions) *cobra.Command {
	var id, born string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			req := profile.CreateRequest{ID: id, Name: args[0]}
			if born != "" {
				birth, err := time.Parse(time.DateOnly, born)
				if err != nil {
					return WrapExitError(ExitCommandError, "--born must be YYYY-MM-DD", err)
				}
				req.BirthDate = &birth
			}
			p, err := a.profiles.Create(a.ctx(cmd), req)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create profile", err)
			}
			return a.out.Success(profileResult{p})
		}),
	}
	cmd.Flags().StringVar(&id, "id", "", "profile id (generated when omitted)")
	cmd.Flags().StringVar(&born, "born", "", "birth date (YYYY-MM-DD)")
	return cmd
}

func newProfileListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			list, err := a.profiles.List(a.ctx(cmd))
			if err != nil {
				return err
			}
			if list == nil {
				list = []profile.Profile{}
			}
			return a.out.Success(profileList(list))
		}),
	}
}

func newProfileRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <profile> <name>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}
			p, err := a.profiles.Rename(ctx, args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to rename profile", err)
			}
			return a.out.Success(profileResult{p})
		}),
	}
}
