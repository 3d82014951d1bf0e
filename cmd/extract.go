package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"videoHighlights/utils"
)

var (
	flagVideo      string
	flagListVideos bool
	flagWorkers    int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract highlights from one video or every video in the videos directory",
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&flagVideo, "video", "", "process a single video file")
	extractCmd.Flags().BoolVar(&flagListVideos, "list-videos", false, "list videos in the videos directory and exit")
	extractCmd.Flags().IntVar(&flagWorkers, "workers", 0, "videos processed in parallel (default from config)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagVideo != "" && !utils.FileExists(flagVideo) {
		return fmt.Errorf("video file not found: %s", flagVideo)
	}

	res, err := initSystem(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	cfg := res.Config

	var paths []string
	if flagVideo != "" {
		paths = []string{flagVideo}
	} else {
		if err := utils.EnsureDir(cfg.VideosDir); err != nil {
			return err
		}
		paths, err = utils.ListVideoFiles(cfg.VideosDir, cfg.VideoExtensions)
		if err != nil {
			return err
		}
	}

	if flagListVideos {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Videos in %s (%d)", cfg.VideosDir, len(paths))))
		for _, p := range paths {
			fmt.Println("  " + filepath.Base(p))
		}
		return nil
	}
	if len(paths) == 0 {
		fmt.Printf("No videos found in %s (extensions %v)\n", cfg.VideosDir, cfg.VideoExtensions)
		return nil
	}

	res.Pipeline.SetVideoWorkers(flagWorkers)
	results := res.Pipeline.ProcessBatch(ctx, paths)
	for _, r := range results {
		if r.Err == nil {
			fmt.Println(formatHighlights(filepath.Base(r.VideoPath), r.Highlights))
		}
	}
	fmt.Println(formatBatchSummary(results))
	return nil
}
