package store

import (
	"log/slog"
)

// FlushLoop buffers episodes from in and writes them as atomic batches of
// episodesPerFlush episodes, plus a final partial batch once in is closed.
// It returns the paths it wrote. Write failures are logged and the rows
// dropped so producers never block on a broken disk.
func FlushLoop(outDir string, episodesPerFlush int, in <-chan []StepRow, log *slog.Logger) []string {
	if episodesPerFlush <= 0 {
		episodesPerFlush = 50
	}

	var written []string
	pendingRows := make([]StepRow, 0, 256*episodesPerFlush)
	pendingEpisodes := 0

	flush := func(final bool) {
		if pendingEpisodes == 0 {
			return
		}
		outPath, err := WriteEpisodeBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Error("parquet flush failed", "episodes", pendingEpisodes, "rows", len(pendingRows), "final", final, "err", err)
		} else {
			log.Info("parquet flush ok", "path", outPath, "episodes", pendingEpisodes, "rows", len(pendingRows), "final", final)
			written = append(written, outPath)
		}
		pendingRows = pendingRows[:0]
		pendingEpisodes = 0
	}

	for rows := range in {
		if len(rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, rows...)
		pendingEpisodes++
		if pendingEpisodes >= episodesPerFlush {
			flush(false)
		}
	}
	flush(true)
	return written
}
