package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"videoHighlights/eventhandlers"
	"videoHighlights/server"
)

var (
	flagPort      string
	flagWithKafka bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query API",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume video ingest messages from Kafka and extract highlights",
	RunE:  runWorker,
}

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "listen port (default from config)")
	serveCmd.Flags().BoolVar(&flagWithKafka, "kafka", false, "also consume the Kafka ingest topic")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := initSystem(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	if flagPort != "" {
		res.Config.Port = flagPort
	}

	srv := server.New(res.Config, res.Chat, res.Store, res.Pipeline)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if flagWithKafka {
		kh, err := newKafkaHandler(res.Config.KafkaBrokers, res.Config.KafkaTopic, res.Config.KafkaGroupID, res.Pipeline)
		if err != nil {
			return err
		}
		g.Go(func() error { return kh.Start(gctx) })
	}
	return g.Wait()
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := initSystem(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	kh, err := newKafkaHandler(res.Config.KafkaBrokers, res.Config.KafkaTopic, res.Config.KafkaGroupID, res.Pipeline)
	if err != nil {
		return err
	}
	return kh.Start(ctx)
}

var errNoKafkaBrokers = errors.New("kafka_brokers is not configured (set KAFKA_BROKERS)")

func newKafkaHandler(brokers []string, topic, groupID string, processor eventhandlers.VideoProcessor) (*eventhandlers.KafkaHandler, error) {
	if len(brokers) == 0 {
		return nil, errNoKafkaBrokers
	}
	return eventhandlers.NewKafkaHandler(brokers, topic, groupID, processor), nil
}
