package game

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const replayFormat = 2

var (
	ErrReplayNotFound = errors.New("replay not found")
	ErrInvalidReplay  = errors.New("invalid replay")
)

// Replay is the view of a game after each completed combat step.
type Replay struct {
	GameID string
	Winner string
	States []*GameView
	mu     sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{GameID: gameID}
}

// Record appends a view.
func (r *Replay) Record(view *GameView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, view)
}

// Size returns the number of recorded views.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.States)
}

// Views returns a copy of the recorded views.
func (r *Replay) Views() []*GameView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*GameView(nil), r.States...)
}

// At returns the view at index, or nil when out of range.
func (r *Replay) At(index int) *GameView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.States) {
		return nil
	}
	return r.States[index]
}

// Steps lists the combat step of every recorded view, in order.
func (r *Replay) Steps() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make([]Step, len(r.States))
	for i, v := range r.States {
		steps[i] = v.Step
	}
	return steps
}

// Find returns the first view of the given turn and step.
func (r *Replay) Find(turn int, step Step) (*GameView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.States {
		if v.Turn == turn && v.Step == step {
			return v, true
		}
	}
	return nil, false
}

// Cursor returns a cursor positioned before the first view.
func (r *Replay) Cursor() *ReplayCursor {
	return &ReplayCursor{replay: r, pos: -1}
}

// ReplayCursor steps through a replay.
type ReplayCursor struct {
	replay *Replay
	pos    int
}

// Next advances to the following view. It returns nil past the end.
func (c *ReplayCursor) Next() *GameView {
	if c.pos < c.replay.Size() {
		c.pos++
	}
	return c.replay.At(c.pos)
}

// Prev moves back one view. It returns nil before the start.
func (c *ReplayCursor) Prev() *GameView {
	if c.pos >= 0 {
		c.pos--
	}
	return c.replay.At(c.pos)
}

// Seek moves forward to the next view of the given step.
func (c *ReplayCursor) Seek(step Step) *GameView {
	for i := c.pos + 1; i < c.replay.Size(); i++ {
		if v := c.replay.At(i); v != nil && v.Step == step {
			c.pos = i
			return v
		}
	}
	return nil
}

type replayHeader struct {
	GameID  string
	Winner  string
	SavedAt time.Time
	Format  int
	States  int
}

// replayPath rejects IDs that would escape dir.
func replayPath(dir, gameID string) (string, error) {
	if gameID == "" || gameID == "." || gameID == ".." || strings.ContainsAny(gameID, `/\`) {
		return "", fmt.Errorf("%w: bad game id %q", ErrInvalidReplay, gameID)
	}
	return filepath.Join(dir, gameID+".replay"), nil
}

// Save writes the replay to dir as gzipped gob. The file appears atomically.
func (r *Replay) Save(dir string) error {
	path, err := replayPath(dir, r.GameID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create replay dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, r.GameID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create replay file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close replay file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (r *Replay) encode(f *os.File) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zw := gzip.NewWriter(f)
	enc := gob.NewEncoder(zw)
	header := replayHeader{
		GameID:  r.GameID,
		Winner:  r.Winner,
		SavedAt: time.Now(),
		Format:  replayFormat,
		States:  len(r.States),
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode replay header: %w", err)
	}
	for i, v := range r.States {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode view %d: %w", i, err)
		}
	}
	return zw.Close()
}

// LoadReplay reads a replay written by Save.
func LoadReplay(dir, gameID string) (*Replay, error) {
	path, err := replayPath(dir, gameID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrReplayNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open replay: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReplay, err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidReplay, err)
	}
	if header.Format != replayFormat {
		return nil, fmt.Errorf("%w: format %d", ErrInvalidReplay, header.Format)
	}

	replay := &Replay{GameID: header.GameID, Winner: header.Winner, States: make([]*GameView, 0, header.States)}
	for i := 0; i < header.States; i++ {
		var v GameView
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: view %d: %v", ErrInvalidReplay, i, err)
		}
		replay.States = append(replay.States, &v)
	}
	return replay, nil
}

// ReplayRecorder holds the replays of running games and saves them when the
// game ends.
type ReplayRecorder struct {
	logger  *zap.Logger
	dir     string
	mu      sync.RWMutex
	replays map[string]*Replay
}

// NewReplayRecorder creates a recorder saving into dir.
func NewReplayRecorder(logger *zap.Logger, dir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		dir:     dir,
		replays: make(map[string]*Replay),
	}
}

// Start begins recording a game, discarding any earlier recording.
func (rr *ReplayRecorder) Start(gameID string) {
	rr.mu.Lock()
	rr.replays[gameID] = NewReplay(gameID)
	rr.mu.Unlock()

	rr.logger.Debug("recording replay", zap.String("game_id", gameID))
}

// Recording reports whether gameID is being recorded.
func (rr *ReplayRecorder) Recording(gameID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, ok := rr.replays[gameID]
	return ok
}

// Record appends a view to the game's replay, if it has one.
func (rr *ReplayRecorder) Record(gameID string, view *GameView) {
	rr.mu.RLock()
	replay := rr.replays[gameID]
	rr.mu.RUnlock()
	if replay != nil {
		replay.Record(view)
	}
}

// Get returns the in-memory replay of a running game.
func (rr *ReplayRecorder) Get(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, ok := rr.replays[gameID]
	return replay, ok
}

// Lookup returns the running game's replay or loads a saved one.
func (rr *ReplayRecorder) Lookup(gameID string) (*Replay, error) {
	if replay, ok := rr.Get(gameID); ok {
		return replay, nil
	}
	return LoadReplay(rr.dir, gameID)
}

// Finish stamps the winner, saves the replay and drops it from memory.
func (rr *ReplayRecorder) Finish(gameID, winner string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[gameID]
	delete(rr.replays, gameID)
	rr.mu.Unlock()
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, ErrReplayNotFound)
	}

	replay.mu.Lock()
	replay.Winner = winner
	replay.mu.Unlock()

	if err := replay.Save(rr.dir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	rr.logger.Info("saved replay",
		zap.String("game_id", gameID),
		zap.Int("views", replay.Size()),
		zap.String("dir", rr.dir))
	return nil
}

// Discard drops a replay without saving it.
func (rr *ReplayRecorder) Discard(gameID string) {
	rr.mu.Lock()
	delete(rr.replays, gameID)
	rr.mu.Unlock()
}
