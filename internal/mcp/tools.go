package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lullaby/internal/domain/activity"
)

// toolHandler adapts a handler method to the SDK's typed tool signature.
// The output is returned as structured content and mirrored as JSON text.
func toolHandler[In, Out any](fn func(context.Context, In) (Out, error)) sdkmcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, any, error) {
		out, err := fn(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return nil, out, nil
	}
}

func readOnly() *sdkmcp.ToolAnnotations {
	return &sdkmcp.ToolAnnotations{ReadOnlyHint: true}
}

// registerTools adds every tool to the server.
func registerTools(server *sdkmcp.Server, h *Handler) {
	// Profiles
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_profiles",
		Description: "List child profiles in creation order",
		Annotations: readOnly(),
	}, toolHandler(func(ctx context.Context, _ ListProfilesParams) (ProfilesResponse, error) {
		return h.ListProfiles(ctx)
	}))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_profile",
		Description: "Create a child profile",
	}, toolHandler(h.CreateProfile))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "rename_profile",
		Description: "Rename a child profile",
	}, toolHandler(h.RenameProfile))

	// Action log
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_state",
		Description: "Get running actions and history for a profile, newest first",
		Annotations: readOnly(),
	}, toolHandler(h.GetState))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name: "start_action",
		Description: "Start a sleep or feeding, or log a diaper change. Starting an exclusive " +
			"category stops the other running exclusive action.",
	}, toolHandler(h.StartAction))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "stop_action",
		Description: "Stop the running action of a category, or the running action with a given id",
	}, toolHandler(h.StopAction))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_action",
		Description: "Edit an action's times or details. Omitted fields keep their value.",
	}, toolHandler(h.UpdateAction))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "continue_action",
		Description: "Reopen a finished action when nothing of its category is running",
	}, toolHandler(h.ContinueAction))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_action",
		Description: "Delete an action",
		Annotations: &sdkmcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, toolHandler(h.DeleteAction))

	// Exchange
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "merge_state",
		Description: "Merge an exported profile state document into a profile. Newer edits win.",
	}, toolHandler(h.MergeState))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "export_state",
		Description: "Export a profile's actions as a versioned document",
		Annotations: readOnly(),
	}, toolHandler(h.ExportState))

	// History
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name: "get_recent_activity",
		Description: "Get recent activity entries, optionally filtered by profile, action or type (" +
			activityTypes() + ")",
		Annotations: readOnly(),
	}, toolHandler(h.GetRecentActivity))

	// Reminders
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "upcoming_reminders",
		Description: "List planned feeding and diaper reminders ordered by due time",
		Annotations: readOnly(),
	}, toolHandler(h.UpcomingReminders))

	// Sync
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_now",
		Description: "Run one remote sync pass and return the resulting status",
	}, toolHandler(func(ctx context.Context, _ SyncParams) (any, error) {
		return h.SyncNow(ctx)
	}))
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_status",
		Description: "Get the last remote sync attempt, success and error",
		Annotations: readOnly(),
	}, toolHandler(func(ctx context.Context, _ SyncParams) (any, error) {
		return h.SyncStatus(ctx)
	}))
}

func activityTypes() string {
	types := []activity.ActivityType{
		activity.TypeActionStarted,
		activity.TypeActionStopped,
		activity.TypeActionUpdated,
		activity.TypeActionContinued,
		activity.TypeActionDeleted,
		activity.TypeStateMerged,
		activity.TypeRemoteApplied,
	}
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		out += string(t)
	}
	return out
}

func boolPtr(v bool) *bool { return &v }
