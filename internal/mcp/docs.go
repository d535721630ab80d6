package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `lullaby keeps a baby-care log per child profile: sleeps, feedings and diaper changes.

Core concepts:
- Profile: one child. Every action belongs to exactly one profile.
- Action: sleep and feeding run from start to end; a diaper change is a single instant.
- Active: at most one running action per category. Starting sleep or feeding stops the other.
- History: finished actions, newest first. Edits are ordered by updated_at; the newer copy wins.

Default workflow:
1) list_profiles (create_profile if empty).
2) get_state(profile_id) before changing anything.
3) start_action / stop_action / update_action / continue_action / delete_action.
   Mutations report changed=false when there was nothing to do.
4) export_state and merge_state move a profile's log between devices.
5) upcoming_reminders lists when the next feeding and diaper change are due.
6) sync_now runs a remote sync pass when a backend is configured; sync_status shows the last result.

Docs:
- lullaby://docs/actions
- lullaby://docs/sync
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "lullaby://docs/actions",
		Name:        "actions",
		Title:       "Action rules",
		Description: "How starts, stops, edits and merges change a profile's log",
		Content: `# Action rules

## Categories

- sleep: duration. Exclusive with feeding by default.
- feeding: duration. Types breast_left, breast_right, bottle, solids. Bottles carry bottle_type and bottle_volume_ml.
- diaper: instant. Types pee, poo, both. start_date equals end_date.

## Starting

Starting a category that is already running replaces the running action; the old one moves to history.
A new action that overlaps the most recent finished action of the same category is clamped to start at its end.

## Editing

Dates given in the wrong order are swapped. An instant action's end is set to its start.
continue_action reopens a finished action only when nothing of its category is running.

## Merging

merge_state keeps whichever copy of an action has the newer updated_at. Actions unknown locally are added.
`,
	},
	{
		URI:         "lullaby://docs/sync",
		Name:        "sync",
		Title:       "Remote sync",
		Description: "What a remote sync pass does",
		Content: `# Remote sync

A pass fetches remote profiles and actions, pushes local copies that are newer or missing remotely,
and applies remote copies that are newer locally. Deleted actions are sent as deletions unless the
remote copy was edited after the deletion, in which case it comes back.

Overlapping passes are skipped. Failures are recorded in sync_status and retried on the next pass.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
