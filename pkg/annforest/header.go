package annforest

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"annforest/pkg/errs"
	"annforest/pkg/forest"
	"annforest/pkg/kvstore"
)

// header is the on-disk {F, K, T, Metric} record persisted at
// kvstore.Meta/kvstore.HeaderKey (SPEC_FULL.md §3.1).
type header struct {
	F, K, T int32
	Metric  byte
}

func encodeHeader(h header) []byte {
	buf := make([]byte, 13)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.F))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.K))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.T))
	buf[12] = h.Metric
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) != 13 {
		return header{}, errs.ErrCorruptRecord
	}
	return header{
		F:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		K:      int32(binary.LittleEndian.Uint32(buf[4:8])),
		T:      int32(binary.LittleEndian.Uint32(buf[8:12])),
		Metric: buf[12],
	}, nil
}

// ensureHeader reads the header record if present and validates it
// against ix.opts (unless SkipHeaderCheck), or — for a writable store
// with no header — runs forest.Create if the tree table is empty and
// writes a fresh header.
func (ix *Index) ensureHeader() error {
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}
	buf, found, err := rtxn.Get(kvstore.Meta, kvstore.HeaderKey)
	rtxn.Discard()
	if err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}

	if found {
		h, err := decodeHeader(buf)
		if err != nil {
			return err
		}
		if !ix.opts.SkipHeaderCheck {
			want := header{F: int32(ix.opts.F), K: int32(ix.opts.K), T: int32(ix.opts.TreeCount), Metric: ix.opts.MetricTag()}
			if h != want {
				return fmt.Errorf("annforest: open: %w", errs.ErrConfigMismatch)
			}
		}
		return nil
	}

	if ix.opts.ReadOnly {
		// No header and no way to create roots: treat as an empty,
		// not-yet-initialized read-only forest rather than an error,
		// matching spec.md's silence on this case.
		return nil
	}

	return ix.createForest()
}

func (ix *Index) createForest() error {
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}
	_, rootsExist, err := rtxn.LastKey(kvstore.Tree)
	rtxn.Discard()
	if err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}
	if !rootsExist {
		if err := forest.Create(ix.env, ix.treeCount); err != nil {
			return fmt.Errorf("annforest: open: %w", err)
		}
	}

	wtxn, err := ix.env.BeginWrite()
	if err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}
	defer wtxn.Abort()

	h := header{F: int32(ix.opts.F), K: int32(ix.opts.K), T: int32(ix.opts.TreeCount), Metric: ix.opts.MetricTag()}
	if err := wtxn.Put(kvstore.Meta, kvstore.HeaderKey, encodeHeader(h)); err != nil {
		return fmt.Errorf("annforest: open: %w", err)
	}
	return wtxn.Commit()
}

func defaultSlog() *slog.Logger {
	return slog.Default()
}
