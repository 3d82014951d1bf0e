package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"videoHighlights/core"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Manage processed videos",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed videos",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := initSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer res.Cleanup()

		videos, err := res.Store.ListVideos(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render(fmt.Sprintf("Processed videos (%d)", len(videos))))
		for _, v := range videos {
			fmt.Printf("  %-6d %-40s %s  %s\n", v.ID, v.Filename, core.FormatTime(v.Duration),
				dimStyle.Render(v.CreatedAt.Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

var videosDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a video and all of its highlights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid video id %q", args[0])
		}
		res, err := initSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer res.Cleanup()

		if err := res.Store.DeleteVideo(cmd.Context(), id); err != nil {
			if errors.Is(err, core.ErrVideoNotFound) {
				return fmt.Errorf("video %d not found", id)
			}
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Deleted video %d", id)))
		return nil
	},
}

func init() {
	videosCmd.AddCommand(videosListCmd)
	videosCmd.AddCommand(videosDeleteCmd)
	rootCmd.AddCommand(videosCmd)
}
