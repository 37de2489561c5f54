package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// TransitionRow is the on-disk form of a Transition, one row per recorded
// self-play step. Rows are model-agnostic so trainers in other stacks can
// consume the same files.
type TransitionRow struct {
	GameID       string    `parquet:"game_id,dict"`
	Step         int32     `parquet:"step"`
	Observation  []float32 `parquet:"observation"`
	TargetPolicy []float32 `parquet:"target_policy"`
	TargetValue  float32   `parquet:"target_value"`
	Source       string    `parquet:"source,dict"`
}

// Archiver persists completed self-play games as zstd-compressed parquet
// batches. Files are written under outDir/tmp and renamed into outDir on
// flush so readers never observe a partial batch.
type Archiver struct {
	mu            sync.Mutex
	outDir        string
	tmpDir        string
	gamesPerFlush int

	tmpPath string
	outPath string
	file    *os.File
	writer  *parquet.GenericWriter[TransitionRow]

	bufferedGames int
	bufferedRows  int
}

// NewArchiver creates outDir (and its tmp subdirectory) if needed and
// returns an archiver flushing a batch file every gamesPerFlush games.
func NewArchiver(outDir string, gamesPerFlush int) (*Archiver, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	return &Archiver{
		outDir:        absOut,
		tmpDir:        tmpDir,
		gamesPerFlush: gamesPerFlush,
	}, nil
}

// WriteGame appends one game's transitions to the current batch, flushing
// the batch file if the games-per-flush threshold is reached.
func (a *Archiver) WriteGame(gameID string, transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	rows := make([]TransitionRow, 0, len(transitions))
	for i, t := range transitions {
		rows = append(rows, TransitionRow{
			GameID:       gameID,
			Step:         int32(i),
			Observation:  t.Observation,
			TargetPolicy: t.TargetPolicy,
			TargetValue:  float32(t.TargetValue),
			Source:       "selfplay",
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.writer == nil {
		if err := a.openBatchLocked(); err != nil {
			return err
		}
	}
	if _, err := a.writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	a.bufferedRows += len(rows)
	a.bufferedGames++

	if a.bufferedGames >= a.gamesPerFlush {
		_, err := a.finalizeLocked()
		return err
	}
	return nil
}

// Flush finalizes the in-progress batch, if any, and returns the path of
// the completed file. The path is empty when there was nothing to flush.
func (a *Archiver) Flush() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalizeLocked()
}

// Close flushes any buffered rows.
func (a *Archiver) Close() error {
	_, err := a.Flush()
	return err
}

func (a *Archiver) openBatchLocked() error {
	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	a.tmpPath = filepath.Join(a.tmpDir, name)
	a.outPath = filepath.Join(a.outDir, name)

	f, err := os.OpenFile(a.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TransitionRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", "transition_row_v1")

	a.file = f
	a.writer = w
	a.bufferedGames = 0
	a.bufferedRows = 0
	return nil
}

func (a *Archiver) finalizeLocked() (string, error) {
	if a.writer == nil {
		return "", nil
	}

	rows := a.bufferedRows
	outPath := a.outPath

	closeErr := a.writer.Close()
	a.writer = nil
	_ = a.file.Sync()
	fileErr := a.file.Close()
	a.file = nil

	if closeErr != nil {
		return "", fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(a.tmpPath)
		return "", nil
	}
	if err := os.Rename(a.tmpPath, outPath); err != nil {
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, nil
}
