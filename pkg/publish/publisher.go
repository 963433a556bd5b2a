// Package publish orchestrates the full language-pack publication workflow:
// parse and validate the upload, allocate identity, bump the file version,
// sign, place the archive, persist the record, refresh the minifest cache.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
	"github.com/packforge/packd/pkg/minifest"
	"github.com/packforge/packd/pkg/observability"
	"github.com/packforge/packd/pkg/signing"
	"github.com/packforge/packd/pkg/storage"
)

// UploadRequest carries one uploaded archive. PackUUID is empty for a brand
// new pack and set when re-publishing an existing one.
type UploadRequest struct {
	PackUUID string
	Data     []byte
}

// Publisher runs uploads through the publication pipeline.
//
// Uploads for the same identity are serialized with a per-identity lock, so
// the collision check and the conditional persist cannot interleave within a
// process. Across processes the entity store's conditional write is the
// arbiter: the second committer gets langpack.ErrStale.
type Publisher struct {
	packs     langpack.Store
	parser    *manifest.Parser
	signer    signing.Signer
	placer    *storage.Placer
	minifests minifest.Cache
	obs       *observability.Provider
	logger    *slog.Logger

	locks sync.Map // pack uuid -> *sync.Mutex
}

// New wires a Publisher. obs may be nil; a disabled provider is substituted.
func New(packs langpack.Store, parser *manifest.Parser, signer signing.Signer,
	placer *storage.Placer, minifests minifest.Cache,
	obs *observability.Provider, logger *slog.Logger) (*Publisher, error) {

	if obs == nil {
		var err error
		obs, err = observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, fmt.Errorf("publish: init observability: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		packs:     packs,
		parser:    parser,
		signer:    signer,
		placer:    placer,
		minifests: minifests,
		obs:       obs,
		logger:    logger.With("component", "publisher"),
	}, nil
}

// Upload publishes one archive and returns the persisted pack.
//
// Failure semantics, in pipeline order:
//   - validation failure: *manifest.ValidationError, nothing touched
//   - unknown PackUUID: langpack.ErrNotFound
//   - destination occupied: *CollisionError, existing file and record intact
//   - signing failure: *SigningError, no file at the destination
//   - storage failure: *WriteError, partial file removed
//   - persist conflict: langpack.ErrStale, placed file removed
//
// A minifest refresh failure after a successful persist is logged, not
// returned: the record is committed and the cache heals on the next fetch.
func (p *Publisher) Upload(ctx context.Context, req UploadRequest) (*langpack.LangPack, error) {
	ctx, done := p.obs.TrackOperation(ctx, "publish.upload",
		attribute.Bool("update", req.PackUUID != ""),
	)
	pack, err := p.upload(ctx, req)
	done(err)
	return pack, err
}

func (p *Publisher) upload(ctx context.Context, req UploadRequest) (*langpack.LangPack, error) {
	// Lock before reading the record so two uploads for the same identity
	// serialize around the read-bump-persist sequence instead of both
	// loading the same expected version.
	var existing *langpack.LangPack
	if req.PackUUID != "" {
		unlock := p.lock(req.PackUUID)
		defer unlock()

		var err error
		existing, err = p.packs.Get(ctx, req.PackUUID)
		if err != nil {
			return nil, fmt.Errorf("load pack %s: %w", req.PackUUID, err)
		}
	}

	data, err := p.parser.Parse(req.Data, existing)
	if err != nil {
		return nil, err
	}

	// Stage every mutation on a copy. Nothing below touches the stored
	// record until the conditional persist commits it all at once.
	var staged *langpack.LangPack
	var expected int64
	if existing != nil {
		staged = existing.Clone()
		expected = existing.FileVersion
	} else {
		staged = &langpack.LangPack{}
	}
	staged.ApplyManifest(data.Locale, data.PlatformVersion, data.Version, data.Raw)
	staged.EnsureUUID()

	if existing == nil {
		unlock := p.lock(staged.UUID)
		defer unlock()
	}

	dest := staged.StoragePath()

	// Fail before signing when the declared version was already published.
	occupied, err := p.placer.Exists(ctx, dest)
	if err != nil {
		return nil, &WriteError{Path: dest, Err: err}
	}
	if occupied {
		return nil, &CollisionError{Path: dest}
	}

	staged.FileVersion = expected + 1

	signStart := time.Now()
	signed, err := p.signer.Sign(ctx, req.Data, signing.IdentityBlock{
		ID:      staged.UUID,
		Version: staged.FileVersion,
	})
	if err != nil {
		// Nothing was written yet; the destination is untouched.
		return nil, &SigningError{Err: err}
	}
	p.logger.DebugContext(ctx, "archive signed",
		"uuid", staged.UUID,
		"file_version", staged.FileVersion,
		"duration", time.Since(signStart),
	)

	if err := p.placer.Place(ctx, dest, signed); err != nil {
		if errors.Is(err, storage.ErrCollision) {
			return nil, &CollisionError{Path: dest}
		}
		return nil, &WriteError{Path: dest, Err: err}
	}

	if err := p.packs.Publish(ctx, staged, expected); err != nil {
		// The file is orphaned without its record; take it back out.
		_ = p.placer.Remove(ctx, dest)
		return nil, fmt.Errorf("persist pack %s: %w", staged.UUID, err)
	}

	// Pick up store-assigned timestamps (and any concurrent Active flip).
	if persisted, err := p.packs.Get(ctx, staged.UUID); err == nil {
		staged = persisted
	}

	if _, _, err := p.minifests.GetOrBuild(ctx, staged, true); err != nil &&
		!errors.Is(err, minifest.ErrNotAvailable) {
		p.logger.WarnContext(ctx, "minifest refresh failed after publish",
			"uuid", staged.UUID, "error", err)
	}

	p.logger.InfoContext(ctx, "langpack published",
		"uuid", staged.UUID,
		"locale", staged.Locale,
		"version", staged.Version,
		"file_version", staged.FileVersion,
		"path", dest,
	)
	return staged, nil
}

// SetActive flips a pack's visibility and keeps the minifest cache coherent:
// activation builds a fresh descriptor, deactivation drops the cached one.
func (p *Publisher) SetActive(ctx context.Context, uuid string, active bool) (*langpack.LangPack, error) {
	ctx, done := p.obs.TrackOperation(ctx, "publish.set_active",
		attribute.Bool("active", active),
	)
	pack, err := p.setActive(ctx, uuid, active)
	done(err)
	return pack, err
}

func (p *Publisher) setActive(ctx context.Context, uuid string, active bool) (*langpack.LangPack, error) {
	unlock := p.lock(uuid)
	defer unlock()

	if err := p.packs.SetActive(ctx, uuid, active); err != nil {
		return nil, err
	}
	pack, err := p.packs.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if active {
		if _, _, err := p.minifests.GetOrBuild(ctx, pack, true); err != nil {
			p.logger.WarnContext(ctx, "minifest refresh failed after activation",
				"uuid", uuid, "error", err)
		}
	} else {
		if err := p.minifests.Invalidate(ctx, uuid); err != nil {
			p.logger.WarnContext(ctx, "minifest invalidation failed",
				"uuid", uuid, "error", err)
		}
	}
	return pack, nil
}

// Remove deletes a pack: the record first, then its current stored file and
// cached minifest. File and cache cleanup failures are logged, not returned;
// once the record is gone the pack no longer exists.
func (p *Publisher) Remove(ctx context.Context, uuid string) error {
	ctx, done := p.obs.TrackOperation(ctx, "publish.remove")
	err := p.remove(ctx, uuid)
	done(err)
	return err
}

func (p *Publisher) remove(ctx context.Context, uuid string) error {
	unlock := p.lock(uuid)
	defer unlock()

	pack, err := p.packs.Get(ctx, uuid)
	if err != nil {
		return err
	}
	if err := p.packs.Delete(ctx, uuid); err != nil {
		return err
	}

	if err := p.placer.Remove(ctx, pack.StoragePath()); err != nil {
		p.logger.WarnContext(ctx, "stored file cleanup failed",
			"uuid", uuid, "path", pack.StoragePath(), "error", err)
	}
	if err := p.minifests.Invalidate(ctx, uuid); err != nil {
		p.logger.WarnContext(ctx, "minifest invalidation failed",
			"uuid", uuid, "error", err)
	}

	p.logger.InfoContext(ctx, "langpack removed", "uuid", uuid)
	return nil
}

func (p *Publisher) lock(uuid string) func() {
	v, _ := p.locks.LoadOrStore(uuid, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
