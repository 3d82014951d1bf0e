package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"videoHighlights/initialization"
)

var (
	flagConfig string
	flagStore  string
)

var rootCmd = &cobra.Command{
	Use:   "video-highlights",
	Short: "Extract highlights from videos and answer questions about them",
	Long: `video-highlights segments videos into highlight spans, describes and embeds each span,
stores them, and answers free-text questions with a chronological list of matching moments.`,
	SilenceUsage: true,
}

// Execute 命令行入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.json", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "storage backend override (memory, pgvector, milvus, sqlite)")
}

// initSystem 加载配置并初始化存储与服务，调用方负责 Cleanup
func initSystem(ctx context.Context) (*initialization.InitializationResult, error) {
	return initialization.NewSystemInitializer(flagConfig, flagStore).InitializeSystem(ctx)
}
