package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/manifest"
)

// Persisted index state names. The index package owns the state machine;
// the manifest stores the names so a foreign reader stays able to interpret
// the record.
const (
	stateRequested  = "requested"
	stateBuilding   = "building"
	stateReady      = "ready"
	stateStale      = "stale"
	stateRebuilding = "rebuilding"
	stateFailed     = "failed"
)

var (
	// ErrIndexNotFound is returned for unknown index names.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexNotReady is returned when an index has no successful build to
	// serve from.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrDuplicateIndex is returned under PolicyError when an index with
	// the same definition already exists.
	ErrDuplicateIndex = errors.New("index already exists")
)

// IndexInfo is a point-in-time view of one index record.
type IndexInfo struct {
	Name     string
	State    index.State
	BuiltSeq uint64
	// Lag is how many registration steps the built snapshot trails the
	// dataset. Zero when the index is current.
	Lag   uint64
	Error string
}

// CreateIndex records an index definition and starts its build as a
// background job. The duplicate policy arbitrates when an index with the
// same (kind, column, timeline) already exists: error, keep the existing
// build, or rebuild over it.
func (d *Dataset) CreateIndex(ctx context.Context, cfg index.Config, policy DuplicatePolicy) (jobID string, err error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	name := cfg.Name()

	rawCfg, err := d.cd.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode index config: %w", err)
	}

	rebuild := false
	skipped := false
	err = d.mutate(ctx, func(st *manifest.State) (bool, error) {
		if existing, ok := st.Indexes[name]; ok {
			switch policy {
			case PolicySkip:
				skipped = true
				return false, nil
			case PolicyOverwrite:
				rebuild = true
				existing.Config = rawCfg
				existing.State = stateRebuilding
				existing.Error = ""
				return true, nil
			default:
				return false, fmt.Errorf("index %s: %w", name, ErrDuplicateIndex)
			}
		}
		st.Indexes[name] = &manifest.IndexRecord{
			Name:   name,
			State:  stateRequested,
			Config: rawCfg,
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if skipped {
		// Existing index kept; nothing to build.
		return "", nil
	}

	return d.spawnBuild(name, cfg, rebuild), nil
}

// ReIndex rebuilds an existing index over the current data as a background
// job.
func (d *Dataset) ReIndex(ctx context.Context, name string) (jobID string, err error) {
	var cfg index.Config
	err = d.mutate(ctx, func(st *manifest.State) (bool, error) {
		rec, ok := st.Indexes[name]
		if !ok {
			return false, fmt.Errorf("index %s: %w", name, ErrIndexNotFound)
		}
		if err := d.cd.Unmarshal(rec.Config, &cfg); err != nil {
			return false, fmt.Errorf("decode index config: %w", err)
		}
		rec.State = stateRebuilding
		rec.Error = ""
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return d.spawnBuild(name, cfg, true), nil
}

func (d *Dataset) spawnBuild(name string, cfg index.Config, rebuild bool) string {
	return d.jobs.Spawn("index-build:"+name, func() error {
		ctx := context.Background()
		if d.res != nil {
			if err := d.res.AcquireBackground(ctx); err != nil {
				return err
			}
			defer d.res.ReleaseBackground()
		}
		return d.buildIndex(ctx, name, cfg, rebuild)
	})
}

// buildIndex runs one build to completion and persists the outcome. The
// build reads a snapshot of the chunk manifest; registrations that land
// while the build runs leave the index stale, not wrong.
func (d *Dataset) buildIndex(ctx context.Context, name string, cfg index.Config, rebuild bool) error {
	st := d.snapshot()
	rows := st.Chunks.Rows
	builtSeq := st.Chunks.BuiltSeq

	building := stateBuilding
	if rebuild {
		building = stateRebuilding
	}
	if err := d.setIndexState(ctx, name, building, ""); err != nil {
		return err
	}

	in, err := index.Build(ctx, cfg, builtSeq, rows, d.LoadChunk)
	if err != nil {
		d.logger.Error("index build failed",
			slog.String("index", name), slog.Any("error", err))
		if serr := d.setIndexState(ctx, name, stateFailed, err.Error()); serr != nil {
			return serr
		}
		return err
	}

	err = d.mutate(ctx, func(mst *manifest.State) (bool, error) {
		rec, ok := mst.Indexes[name]
		if !ok {
			return false, fmt.Errorf("index %s: %w", name, ErrIndexNotFound)
		}
		rec.BuiltSeq = builtSeq
		rec.Manifest = in.Manifest(d.id, rows)
		rec.Error = ""
		if builtSeq == mst.Seq {
			rec.State = stateReady
		} else {
			// Data landed mid-build; the snapshot is already behind.
			rec.State = stateStale
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.built[name] = in
	d.mu.Unlock()

	d.logger.Info("index built",
		slog.String("index", name),
		slog.Int("postings", in.NumPostings()),
		slog.Uint64("seq", builtSeq))
	return nil
}

func (d *Dataset) setIndexState(ctx context.Context, name, state, errMsg string) error {
	return d.mutate(ctx, func(st *manifest.State) (bool, error) {
		rec, ok := st.Indexes[name]
		if !ok {
			return false, fmt.Errorf("index %s: %w", name, ErrIndexNotFound)
		}
		rec.State = state
		rec.Error = errMsg
		return true, nil
	})
}

// Indexes lists the dataset's index records.
func (d *Dataset) Indexes() []IndexInfo {
	st := d.snapshot()
	out := make([]IndexInfo, 0, len(st.Indexes))
	for _, rec := range st.Indexes {
		info := IndexInfo{
			Name:     rec.Name,
			State:    index.ParseState(rec.State),
			BuiltSeq: rec.BuiltSeq,
			Error:    rec.Error,
		}
		if st.Seq > rec.BuiltSeq {
			info.Lag = st.Seq - rec.BuiltSeq
		}
		out = append(out, info)
	}
	return out
}

// SearchResult is an index search answer: the uniform hit rows plus the
// state of the index that served them, so a caller can see it was answered
// from a stale snapshot.
type SearchResult struct {
	Index string
	State index.State
	Hits  []index.Hit
}

// Search runs a query against a named index. Ready and stale indexes
// serve; a stale index answers from its built snapshot and reports so in
// the result. Unbuilt or failed indexes return ErrIndexNotReady.
func (d *Dataset) Search(ctx context.Context, name string, payload index.Payload, props index.QueryProps) (*SearchResult, error) {
	st := d.snapshot()
	rec, ok := st.Indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %s: %w", name, ErrIndexNotFound)
	}
	state := index.ParseState(rec.State)
	if state != index.StateReady && state != index.StateStale {
		return nil, fmt.Errorf("index %s is %s: %w", name, state, ErrIndexNotReady)
	}

	in, err := d.instance(ctx, rec)
	if err != nil {
		return nil, err
	}
	hits, err := in.Search(payload, props)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Index: name, State: state, Hits: hits}, nil
}

// instance returns the in-memory build for an index record, reconstructing
// it from the record's persisted manifest after a restart. The
// reconstruction reads the same chunk rows the original build covered, so
// a stale index keeps answering from its snapshot.
func (d *Dataset) instance(ctx context.Context, rec *manifest.IndexRecord) (*index.Instance, error) {
	d.mu.RLock()
	in, ok := d.built[rec.Name]
	d.mu.RUnlock()
	if ok && in.BuiltSeq() == rec.BuiltSeq {
		return in, nil
	}

	if rec.Manifest == nil {
		return nil, fmt.Errorf("index %s has no built manifest: %w", rec.Name, ErrIndexNotReady)
	}
	var cfg index.Config
	if err := d.cd.Unmarshal(rec.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode index config: %w", err)
	}
	in, err := index.Build(ctx, cfg, rec.BuiltSeq, rec.Manifest.Rows, d.LoadChunk)
	if err != nil {
		return nil, fmt.Errorf("reconstruct index %s: %w", rec.Name, err)
	}

	d.mu.Lock()
	d.built[rec.Name] = in
	d.mu.Unlock()
	return in, nil
}
