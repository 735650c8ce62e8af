// Command squares-tally is the Lambda function attached to the squares table
// stream. It keeps each board's squares_taken tally current.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/config"
	"github.com/jacentio/squares/internal/logger"
	"github.com/jacentio/squares/store"
	"github.com/jacentio/squares/stream"
)

var _ stream.Tally = (*board.DynamoRepository)(nil)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.SetupDefault(nil, cfg.Level())

	client, err := cfg.NewDynamoDBClient(context.Background())
	if err != nil {
		log.Error("create dynamodb client", "error", err)
		os.Exit(1)
	}

	repo := board.NewDynamoRepository(store.New(client, cfg.Store()))
	lambda.Start(stream.NewHandler(repo, log).HandleSquareChanges)
}
