package sink

import (
	"context"
	"path"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// BlobSink writes encoded batches to an object store.
type BlobSink struct {
	store  blob.Store
	prefix string
	format Format
}

// NewBlobSink returns a sink writing below prefix.
func NewBlobSink(store blob.Store, prefix string, format Format) *BlobSink {
	return &BlobSink{store: store, prefix: prefix, format: format}
}

// Name implements Sink.
func (s *BlobSink) Name() string { return "blob" }

// Write implements Sink. Object stores have no atomic create-if-absent, so
// concurrent writers of the same path must be serialized by the caller.
func (s *BlobSink) Write(ctx context.Context, batch models.OutputBatch, dataset, p string, overwrite bool) (string, error) {
	data, err := Encode(s.format, batch)
	if err != nil {
		return "", apperr.SinkWrite(p, err)
	}

	base := path.Join(s.prefix, dataset, p)
	key := base + s.format.Ext()
	if !overwrite {
		free, err := freePath(base, func(candidate string) (bool, error) {
			return s.store.Exists(ctx, candidate+s.format.Ext())
		})
		if err != nil {
			return "", apperr.SinkWrite(p, err)
		}
		key = free + s.format.Ext()
	}

	if err := s.store.Put(ctx, key, data, s.format.ContentType()); err != nil {
		return "", apperr.SinkWrite(p, err)
	}
	if overwrite {
		if err := s.removeVersions(ctx, base); err != nil {
			return "", apperr.SinkWrite(p, err)
		}
	}
	return key, nil
}

// removeVersions deletes the {base}_{n} objects left by earlier runs.
func (s *BlobSink) removeVersions(ctx context.Context, base string) error {
	keys, err := s.store.List(ctx, base+"_")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !isVersionOf(key, base, s.format.Ext()) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
