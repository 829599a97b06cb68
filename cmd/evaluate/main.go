package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/dealsight/backend/internal/adapters/database"
	"github.com/dealsight/backend/internal/infrastructure/clients/postgres"
	"github.com/dealsight/backend/internal/ml"
	"github.com/dealsight/backend/pkg/config"
)

// evaluationSummary is the JSON report printed after an offline run
type evaluationSummary struct {
	Samples         int     `json:"samples"`
	TrainingSamples int     `json:"training_samples"`
	HeldOutSamples  int     `json:"held_out_samples"`
	TrainAccuracy   float64 `json:"train_accuracy"`
	HeldOutAccuracy float64 `json:"held_out_accuracy"`
	Epochs          int     `json:"epochs"`
	LearningRate    float64 `json:"learning_rate"`
	FeatureCount    int     `json:"feature_count"`
}

func main() {
	split := flag.Float64("split", 0.8, "fraction of samples used for training")
	epochs := flag.Int("epochs", 1000, "training epochs")
	learningRate := flag.Float64("lr", 0.1, "learning rate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pgClient.Close()

	clientRepo := database.NewClientAdapter(pgClient)

	samples, err := clientRepo.ListTrainingSamples(context.Background())
	if err != nil {
		log.Fatalf("Failed to load training samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("No labeled samples available; categorize an upload first")
	}

	features := make([][]float64, len(samples))
	labels := make([]float64, len(samples))
	for i, sample := range samples {
		features[i] = ml.Encode(sample.Data)
		if sample.Closed {
			labels[i] = 1
		}
	}

	cut := int(float64(len(samples)) * *split)
	if cut <= 0 || cut > len(samples) {
		cut = len(samples)
	}

	opts := ml.TrainOptions{Epochs: *epochs, LearningRate: *learningRate}
	model, err := ml.Train(features[:cut], labels[:cut], opts)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	summary := evaluationSummary{
		Samples:         len(samples),
		TrainingSamples: cut,
		HeldOutSamples:  len(samples) - cut,
		TrainAccuracy:   model.Accuracy(features[:cut], labels[:cut]),
		Epochs:          *epochs,
		LearningRate:    *learningRate,
		FeatureCount:    ml.FeatureCount(),
	}
	if cut < len(samples) {
		summary.HeldOutAccuracy = model.Accuracy(features[cut:], labels[cut:])
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render summary: %v", err)
	}
	fmt.Println(string(out))
}
