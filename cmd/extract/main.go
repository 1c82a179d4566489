// Command extract runs normalize, extract, parse and validate on a local
// agreement file and prints the resulting record as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
	"github.com/YorickdeJong/energy-contracts/internal/llm/openai"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
	"github.com/YorickdeJong/energy-contracts/internal/pipeline"
)

func main() {
	strict := flag.Bool("strict", false, "fail on unparsable dates and amounts instead of nulling them")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall time limit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: extract [-strict] [-timeout 3m] <agreement-file>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	validator, err := llm.NewValidator(!*strict, logger)
	if err != nil {
		logger.Error("compile extraction schema", "error", err)
		os.Exit(1)
	}
	proc := pipeline.NewProcessor(nil, nil,
		openai.NewExtractor(cfg.LLM, logger),
		validator,
		convert.ConfigFrom(cfg.Convert),
		convert.NewExecRunner(logger),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	res, err := proc.ExtractFile(ctx, path, logger.With("file", path))
	if err != nil {
		out, _ := json.MarshalIndent(map[string]any{
			"status":        "failed",
			"error_code":    common.CodeOf(err),
			"error_message": common.MessageOf(err),
			"error_fields":  common.FieldErrors(err),
		}, "", "  ")
		fmt.Println(string(out))
		logger.Error("extract.failed", "code", common.CodeOf(err), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(map[string]any{
		"status":         "processed",
		"extracted_data": res,
	}, "", "  ")
	fmt.Println(string(out))
	logger.Info("extract.ok", "renters", len(res.Renters), "warnings", len(res.Warnings), "elapsed_ms", time.Since(start).Milliseconds())
}
