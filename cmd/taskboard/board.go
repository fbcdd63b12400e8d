package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/types"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Manage board columns and views",
}

var columnProject string

var boardColumnAddCmd = &cobra.Command{
	Use:   "add-column [name]",
	Short: "Append a column to a project's board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		column := &types.BoardColumn{ProjectID: columnProject, Name: args[0]}
		if err := service.CreateColumn(rootCtx, column); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(column)
		}
		fmt.Printf("Created column %s at position %d\n", column.ID, column.Position)
		return nil
	},
}

var boardColumnsCmd = &cobra.Command{
	Use:   "columns [project-id]",
	Short: "List a project's columns in board order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		columns, err := service.ListColumns(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(columns)
		}
		for _, c := range columns {
			fmt.Printf("%d  %s  (%s)\n", c.Position, c.Name, c.ID)
		}
		return nil
	},
}

var boardListCmd = &cobra.Command{
	Use:   "list [column-id]",
	Short: "List a column's issues in position order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := service.ListColumnIssues(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(issues)
		}
		for _, i := range issues {
			fmt.Printf("%d  #%d %s [%s] v%d\n", i.ColumnPosition, i.IssueNumber, i.Title, i.Status, i.Version)
		}
		return nil
	},
}

var boardStatsCmd = &cobra.Command{
	Use:   "stats [project-id]",
	Short: "Show a project's issue counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := service.ProjectStats(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(stats)
		}
		fmt.Printf("project %s: %d issues (%d open, %d closed)\n",
			stats.ProjectID, stats.TotalIssues, stats.OpenIssues, stats.ClosedCount)
		return nil
	},
}

func init() {
	boardColumnAddCmd.Flags().StringVarP(&columnProject, "project", "p", "", "project the column belongs to")
	_ = boardColumnAddCmd.MarkFlagRequired("project")

	boardCmd.AddCommand(boardColumnAddCmd, boardColumnsCmd, boardListCmd, boardStatsCmd)
	rootCmd.AddCommand(boardCmd)
}
