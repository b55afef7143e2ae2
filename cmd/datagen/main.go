package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/generator"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := generator.DefaultConfig()
	var (
		area          = flag.String("area", cfg.Area, "area name recorded with the dataset")
		centerLat     = flag.Float64("lat", cfg.CenterLatitude, "latitude of the grid centre")
		centerLon     = flag.Float64("lon", cfg.CenterLongitude, "longitude of the grid centre")
		rows          = flag.Int("rows", cfg.Rows, "number of east-west streets")
		cols          = flag.Int("cols", cfg.Cols, "number of north-south streets")
		spacing       = flag.Float64("spacing", cfg.SpacingMeters, "meters between neighbouring intersections")
		missingChance = flag.Float64("missing-street-chance", cfg.MissingStreetChance, "probability of leaving a street segment out")
		maxDetour     = flag.Float64("max-detour", cfg.MaxDetour, "upper bound of the random length stretch applied to segments")
		pharmacies    = flag.Int("pharmacies", cfg.NumPharmacies, "number of pharmacies to scatter")
		unnamedChance = flag.Float64("unnamed-chance", cfg.UnnamedChance, "probability of a pharmacy without a name")
		seed          = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		output        = flag.String("output", "data/dataset.json", "file to write the dataset to")
		writeStdout   = flag.Bool("stdout", false, "write the dataset to stdout instead of a file")
	)
	flag.Parse()

	genCfg := generator.Config{
		Area:                *area,
		CenterLatitude:      *centerLat,
		CenterLongitude:     *centerLon,
		Rows:                *rows,
		Cols:                *cols,
		SpacingMeters:       *spacing,
		MissingStreetChance: clampProbability(*missingChance),
		MaxDetour:           *maxDetour,
		NumPharmacies:       *pharmacies,
		UnnamedChance:       clampProbability(*unnamedChance),
		Seed:                *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		return 1
	}

	if *writeStdout {
		if err := generator.EncodeDataset(os.Stdout, dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			return 1
		}
		return 0
	}

	if err := generator.WriteDataset(dataset, *output); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Generated %d intersections, %d street segments and %d pharmacies into %s\n",
		len(dataset.Vertices), len(dataset.Edges), len(dataset.PointsOfInterest), *output)
	return 0
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
