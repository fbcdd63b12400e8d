package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/retry"
	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create and mutate issues",
}

var (
	createProject     string
	createColumn      string
	createDescription string
	createAssignee    string
	createStatus      string
)

var issueCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create an issue at the end of a column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue := &types.Issue{
			ProjectID:   createProject,
			Title:       args[0],
			Description: createDescription,
			Assignee:    createAssignee,
			Status:      types.Status(createStatus),
			ColumnID:    createColumn,
		}
		if err := service.CreateIssue(rootCtx, issue, actor); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(issue)
		}
		fmt.Printf("Created issue #%d (%s)\n", issue.IssueNumber, issue.ID)
		return nil
	},
}

var (
	updateVersion     int64
	updateTitle       string
	updateDescription string
	updateStatus      string
	updateAssignee    string
	updateRetry       bool
)

var issueUpdateCmd = &cobra.Command{
	Use:   "update [issue-id]",
	Short: "Update issue fields under the version check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		patch := map[string]any{}
		if cmd.Flags().Changed("title") {
			patch["title"] = updateTitle
		}
		if cmd.Flags().Changed("description") {
			patch["description"] = updateDescription
		}
		if cmd.Flags().Changed("status") {
			patch["status"] = updateStatus
		}
		if cmd.Flags().Changed("assignee") {
			patch["assignee"] = updateAssignee
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update: pass at least one of --title, --description, --status, --assignee")
		}

		var updated *types.Issue
		apply := func(expected int64) error {
			var err error
			updated, err = service.UpdateIssue(rootCtx, id, expected, patch, actor)
			return err
		}

		var err error
		if updateRetry {
			// Re-fetch and reapply on each conflict; the patch carries no
			// state derived from the stale read, so replay is safe.
			err = retry.Do(rootCtx, retry.DefaultPolicy(), func(ctx context.Context) error {
				current, getErr := service.GetIssue(ctx, id)
				if getErr != nil {
					return getErr
				}
				return apply(current.Version)
			})
		} else {
			err = apply(updateVersion)
		}
		if err != nil {
			return describeConflict(err, id)
		}
		if jsonOutput {
			return outputJSON(updated)
		}
		fmt.Printf("Updated %s to version %d\n", updated.ID, updated.Version)
		return nil
	},
}

var (
	moveVersion  int64
	movePosition int
)

var issueMoveCmd = &cobra.Command{
	Use:   "move [issue-id] [column-id]",
	Short: "Move an issue to a position on the board",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		moved, err := service.MoveIssue(rootCtx, args[0], args[1], movePosition, moveVersion, actor)
		if err != nil {
			return describeConflict(err, args[0])
		}
		if jsonOutput {
			return outputJSON(moved)
		}
		fmt.Printf("Moved %s to column %s position %d (version %d)\n",
			moved.ID, moved.ColumnID, moved.ColumnPosition, moved.Version)
		return nil
	},
}

var deleteVersion int64

var issueDeleteCmd = &cobra.Command{
	Use:   "delete [issue-id]",
	Short: "Soft-delete an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.DeleteIssue(rootCtx, args[0], deleteVersion, actor); err != nil {
			return describeConflict(err, args[0])
		}
		if !jsonOutput {
			fmt.Printf("Deleted %s\n", args[0])
		}
		return nil
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show [issue-id]",
	Short: "Show a single issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := service.GetIssue(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(issue)
		}
		fmt.Printf("#%d %s [%s] column=%s pos=%d version=%d\n",
			issue.IssueNumber, issue.Title, issue.Status, issue.ColumnID, issue.ColumnPosition, issue.Version)
		if issue.Assignee != "" {
			fmt.Printf("  assignee: %s\n", issue.Assignee)
		}
		if issue.Description != "" {
			fmt.Printf("  %s\n", issue.Description)
		}
		return nil
	},
}

var issueActivityCmd = &cobra.Command{
	Use:   "activity [issue-id]",
	Short: "Show an issue's activity log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := service.ListActivity(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(entries)
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action)
			if e.Action == types.ActionMoved {
				line += fmt.Sprintf(" %s -> %s", e.FromColumnID, e.ToColumnID)
			}
			if e.Actor != "" {
				line += " by " + e.Actor
			}
			fmt.Println(line)
		}
		return nil
	},
}

// describeConflict adds a recovery hint when a mutation lost the version
// race; other errors pass through untouched.
func describeConflict(err error, id string) error {
	if storage.IsConflict(err) {
		return fmt.Errorf("%w: issue %s changed since it was read; re-fetch and retry with the current version", err, id)
	}
	return err
}

func init() {
	issueCreateCmd.Flags().StringVarP(&createProject, "project", "p", "", "project the issue belongs to")
	issueCreateCmd.Flags().StringVarP(&createColumn, "column", "c", "", "column to append the issue to")
	issueCreateCmd.Flags().StringVarP(&createDescription, "description", "d", "", "issue description")
	issueCreateCmd.Flags().StringVarP(&createAssignee, "assignee", "a", "", "assignee")
	issueCreateCmd.Flags().StringVar(&createStatus, "status", "", "initial status (defaults to open)")
	_ = issueCreateCmd.MarkFlagRequired("project")
	_ = issueCreateCmd.MarkFlagRequired("column")

	issueUpdateCmd.Flags().Int64Var(&updateVersion, "version", 0, "expected current version")
	issueUpdateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	issueUpdateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	issueUpdateCmd.Flags().StringVar(&updateStatus, "status", "", "new status")
	issueUpdateCmd.Flags().StringVar(&updateAssignee, "assignee", "", "new assignee")
	issueUpdateCmd.Flags().BoolVar(&updateRetry, "retry", false, "re-fetch and retry on version conflicts")

	issueMoveCmd.Flags().Int64Var(&moveVersion, "version", 0, "expected current version")
	issueMoveCmd.Flags().IntVar(&movePosition, "position", 0, "target position (past-end clamps to append)")
	_ = issueMoveCmd.MarkFlagRequired("version")

	issueDeleteCmd.Flags().Int64Var(&deleteVersion, "version", 0, "expected current version")
	_ = issueDeleteCmd.MarkFlagRequired("version")

	issueCmd.AddCommand(issueCreateCmd, issueUpdateCmd, issueMoveCmd, issueDeleteCmd, issueShowCmd, issueActivityCmd)
	rootCmd.AddCommand(issueCmd)
}
