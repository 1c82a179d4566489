// Command convert runs only the format normalizer and copies the canonical
// file next to the input (or to -out).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
)

func main() {
	out := flag.String("out", "", "destination path (default: input name with the canonical extension)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: convert [-out path] <file>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	in := flag.Arg(0)

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	convCfg := convert.ConfigFrom(cfg.Convert)
	norm := convert.New(convCfg, convert.NewExecRunner(logger), logger)
	defer norm.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), convCfg.Timeout+30*time.Second)
	defer cancel()

	canonical, err := norm.Normalize(ctx, in)
	if err != nil {
		logger.Error("convert.failed", "file", in, "code", common.CodeOf(err), "error", err)
		os.Exit(1)
	}

	dst := *out
	if dst == "" {
		dst = strings.TrimSuffix(in, filepath.Ext(in)) + filepath.Ext(canonical)
	}
	if canonical == in || dst == in {
		fmt.Println(in)
		return
	}
	if err := copyFile(canonical, dst); err != nil {
		logger.Error("convert.copy_failed", "dst", dst, "error", err)
		os.Exit(1)
	}
	fmt.Println(dst)
}

func copyFile(src, dst string) error {
	r, err := os.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
