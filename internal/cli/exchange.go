package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/exchange"
	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command. The document is written
// as-is regardless of --format.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <profile>",
		Short: "Export a profile's log as a JSON document",
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
			doc := exchange.Export(args[0], state, time.Now())

			if output == "" || output == "-" {
				return exchange.Encode(cmd.OutOrStdout(), doc)
			}
			f, err := os.Create(output)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create output file", err)
			}
			if err := exchange.Encode(f, doc); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

type mergeResult struct {
	action.MergeSummary
}

func (r mergeResult) Text() string {
	return fmt.Sprintf("Imported: %d added, %d updated.\n", r.Added, r.Updated)
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <profile> <file|->",
		Short: "Merge an exported document into a profile",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.ctx(cmd)
			if _, err := a.requireProfile(ctx, args[0]); err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open document", err)
				}
				defer f.Close()
				in = f
			}

			doc, err := exchange.Decode(in)
			if errors.Is(err, exchange.ErrInvalidDocument) {
				return WrapExitError(ExitCommandError, "invalid document", err)
			}
			if err != nil {
				return err
			}
			summary, err := a.store.MergeProfileState(ctx, args[0], doc.State())
			if err != nil {
				return err
			}
			return a.out.Success(mergeResult{summary})
		}),
	}
}
