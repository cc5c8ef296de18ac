package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/simulation"
)

func main() {
	validate := flag.Bool("validate", false, "validate the study file and exit")
	timeout := flag.Int64("timeout", 60, "run timeout in seconds")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: gridmesh [flags] <study.toml>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	observability.InitLogger("gridmesh")
	study, err := config.LoadStudy(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load study")
	}
	if *validate {
		fmt.Printf("study %q ok: %d nodes\n", study.Name, len(study.Nodes))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(*timeout)*time.Second)
	defer cancel()

	engine, err := simulation.NewEngine(study)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	result, err := engine.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}
	fmt.Println(string(out))
}
