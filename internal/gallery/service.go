// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package gallery is the facade the external boundaries (HTTP handlers, the
// watcher) call into. It composes the stores, the snapshot engine, the
// pipeline, the album aggregator, and the capability-token signer, and it
// enforces read-only mode and response redaction.
package gallery

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/album"
	"github.com/tomtom215/galleria/internal/config"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/pipeline"
	"github.com/tomtom215/galleria/internal/query"
	"github.com/tomtom215/galleria/internal/share"
	"github.com/tomtom215/galleria/internal/snapshot"
	"github.com/tomtom215/galleria/internal/storage"
	"github.com/tomtom215/galleria/internal/token"
)

// Service is the gallery core's public surface.
type Service struct {
	cfg      *config.Config
	layout   *storage.Layout
	store    *database.Store
	tree     *index.Tree
	engine   *snapshot.Engine
	flush    *flush.Coordinator
	pipeline *pipeline.Pipeline
	albums   *album.Aggregator
	signer   *token.Signer
}

// New wires a service over its collaborators.
func New(cfg *config.Config, layout *storage.Layout, store *database.Store,
	tree *index.Tree, engine *snapshot.Engine, coordinator *flush.Coordinator,
	pipe *pipeline.Pipeline, albums *album.Aggregator, signer *token.Signer) *Service {
	return &Service{
		cfg:      cfg,
		layout:   layout,
		store:    store,
		tree:     tree,
		engine:   engine,
		flush:    coordinator,
		pipeline: pipe,
		albums:   albums,
		signer:   signer,
	}
}

// mutable rejects the call when the instance runs read-only.
func (s *Service) mutable() error {
	if s.cfg.Public.ReadOnlyMode {
		return apperr.New(apperr.ReadOnlyMode, "instance is read-only")
	}
	return nil
}

// SubmitPath enters the ingestion pipeline for a filesystem path. The
// watcher calls this directly; albumID pre-signs membership.
func (s *Service) SubmitPath(path string, albumID string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.pipeline.SubmitDetached(path, albumID)
	return nil
}

// SubmitUpload lands uploaded bytes under upload/ and ingests them in
// place; the temp file is removed by the pipeline like any watched source.
func (s *Service) SubmitUpload(filename string, data []byte, albumID string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	ext := models.NormalizeExt(filepath.Ext(filename))
	if _, ok := models.ClassifyExt(ext); !ok {
		return apperr.Newf(apperr.InvalidInput, "unsupported upload extension %q", ext)
	}
	dst := filepath.Join(s.layout.UploadDir(), uuid.New().String()+"."+ext)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "write upload", err)
	}
	s.pipeline.SubmitDetached(dst, albumID)
	return nil
}

// OpenSnapshot allocates a snapshot for the query under the viewer's
// permissions and returns (timestamp, length).
func (s *Service) OpenSnapshot(expr *query.Expression, priority []string,
	viewer *share.Context) (int64, int, error) {
	return s.engine.Open(expr, priority, restrictionFor(viewer))
}

// restrictionFor maps a viewer onto the query compiler's restricted mode.
func restrictionFor(viewer *share.Context) *query.Restriction {
	if viewer == nil || viewer.ShowMetadata() {
		return nil
	}
	return &query.Restriction{AlbumID: viewer.AlbumID}
}

// RecordReturn is one paginated element: the redacted record plus its
// per-item capability token.
type RecordReturn struct {
	Record *models.Record `json:"record"`
	Token  string         `json:"token"`
}

// Page is a pagination response.
type Page struct {
	Items []RecordReturn `json:"items"`

	// TimestampToken renews expired item tokens for this snapshot.
	TimestampToken string `json:"timestamp_token"`
}

// ReadPage returns snapshot elements [start, end) redacted for the viewer
// and accompanied by capability tokens.
func (s *Service) ReadPage(timestamp int64, start, end int, viewer *share.Context) (*Page, error) {
	if viewer == nil {
		viewer = share.AdminContext
	}
	reduced, err := s.engine.GetData(timestamp, start, end)
	if err != nil {
		return nil, err
	}

	allowOriginal := viewer.ShowDownload()
	items := make([]RecordReturn, 0, len(reduced))
	for _, rd := range reduced {
		record, err := s.store.Get(rd.Hash)
		if err != nil {
			if apperr.IsNotFound(err) {
				// Deleted after the snapshot was taken; the snapshot keeps
				// its positions, but the row is left out of this page.
				continue
			}
			return nil, err
		}
		itemToken, err := s.signer.SignHash(rd.Hash, timestamp, allowOriginal)
		if err != nil {
			return nil, err
		}
		items = append(items, RecordReturn{
			Record: share.Redact(record, viewer),
			Token:  itemToken,
		})
	}

	tsToken, err := s.signer.SignTimestamp(timestamp, viewer.AlbumID, viewer.ShareID)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, TimestampToken: tsToken}, nil
}

// ReadRows returns the justified-row layout window starting at index.
func (s *Service) ReadRows(timestamp int64, idx int) (*snapshot.RowLayout, error) {
	return s.engine.GetRows(timestamp, idx)
}

// ReadScrollBar returns the snapshot's month buckets.
func (s *Service) ReadScrollBar(timestamp int64) ([]snapshot.Bucket, error) {
	return s.engine.GetScrollBar(timestamp)
}

// RenewToken exchanges an expired item token plus a valid snapshot token
// for a fresh item token.
func (s *Service) RenewToken(expiredHash, timestampToken string) (string, error) {
	return s.signer.Renew(expiredHash, timestampToken)
}

// ResolveShare authenticates a viewer against an album share.
func (s *Service) ResolveShare(albumID, shareID, password string) (*share.Context, error) {
	record, err := s.store.Get(albumID)
	if err != nil {
		return nil, err
	}
	return share.Resolve(record, shareID, password, time.Now())
}

// resolveIndices maps snapshot positions onto record ids.
func (s *Service) resolveIndices(timestamp int64, indices []int) ([]string, error) {
	items, err := s.engine.Load(timestamp)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(items) {
			return nil, apperr.Newf(apperr.InvalidInput,
				"index %d outside snapshot of length %d", idx, len(items))
		}
		ids = append(ids, items[idx].Hash)
	}
	return ids, nil
}

// mutateRecords loads each id, applies fn, stamps update_at monotonically,
// and commits everything as one flush batch. fn returns whether the record
// actually changed.
func (s *Service) mutateRecords(ctx context.Context, ids []string,
	fn func(*models.Record) bool) error {

	nowMS := time.Now().UnixMilli()
	var dirty []*models.Record
	for _, id := range ids {
		record, err := s.store.Get(id)
		if err != nil {
			return err
		}
		if !fn(record) {
			continue
		}
		if nowMS > record.UpdateAt {
			record.UpdateAt = nowMS
		} else {
			record.UpdateAt++
		}
		dirty = append(dirty, record)
	}
	if len(dirty) == 0 {
		return nil
	}
	return s.flush.FlushSync(ctx, flush.Insert(dirty...))
}
