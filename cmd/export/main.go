// Command export turns recorded episode batches into supervised training
// shards (features, one-hot action, discounted return) for the ONNX policy.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/store"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	inDir := flag.String("in-dir", "", "Directory of episode batches (defaults to output.dir)")
	outDir := flag.String("out-dir", "data/training", "Output directory for training shards")
	gamma := flag.Float64("gamma", 0.9, "Discount applied to future rewards")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(2)
	}
	log, err := cfg.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(2)
	}
	if *inDir == "" {
		*inDir = cfg.Output.Dir
	}

	n, err := export(*inDir, *outDir, *gamma, log)
	if err != nil {
		log.Error("export failed", "err", err)
		os.Exit(1)
	}
	log.Info("export done", "files", n, "out", *outDir)
}

// export converts every batch under inDir and returns how many shards it wrote.
func export(inDir, outDir string, gamma float64, log *slog.Logger) (int, error) {
	if gamma < 0 || gamma > 1 {
		return 0, fmt.Errorf("gamma %v outside [0, 1]", gamma)
	}
	absIn, _ := filepath.Abs(inDir)
	absOut, _ := filepath.Abs(outDir)
	if absIn == absOut {
		return 0, errors.New("out-dir must be different from in-dir")
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return 0, fmt.Errorf("create out-dir: %w", err)
	}

	var inputs []string
	_ = filepath.WalkDir(absIn, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.HasSuffix(name, ".parquet") && !strings.HasSuffix(name, ".train.parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no parquet inputs under %s", absIn)
	}

	converted := 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := store.ConvertToTraining(inPath, outPath, gamma)
		if err != nil {
			log.Warn("convert failed", "in", inPath, "err", err)
			continue
		}
		if n > 0 {
			converted++
			log.Debug("converted", "in", inPath, "out", outPath, "rows", n)
		}
	}
	if converted == 0 {
		return 0, errors.New("no output written (no convertible rows)")
	}
	return converted, nil
}
