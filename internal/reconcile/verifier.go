package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/reading"
)

// reverifyLimit caps concurrent reader calls during Reverify.
const reverifyLimit = 4

// Verifier runs extractions for registry items. Each extraction only ever
// updates its own item.
type Verifier struct {
	ctx      context.Context
	registry *Registry
	reader   reading.Reader
	wg       sync.WaitGroup
}

// NewVerifier creates a Verifier. Background extractions run under ctx and
// stop when it is cancelled.
func NewVerifier(ctx context.Context, registry *Registry, reader reading.Reader) *Verifier {
	return &Verifier{ctx: ctx, registry: registry, reader: reader}
}

// Submit attaches img to its item and starts reading it in the background.
// The returned entry shows the item as pending.
func (v *Verifier) Submit(img *capture.CapturedImage) (Entry, error) {
	token, err := v.registry.AttachImage(img.Item, img)
	if err != nil {
		return Entry{}, err
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.extract(v.ctx, img, token)
	}()

	return v.registry.Entry(img.Item)
}

// Reverify reads the stored photos of keys again (all items when keys is
// empty) and waits for the results. Items without a photo are skipped.
func (v *Verifier) Reverify(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		keys = v.registry.Keys()
	}

	images := make([]*capture.CapturedImage, 0, len(keys))
	for _, key := range keys {
		img, err := v.registry.Image(key)
		if err != nil {
			return err
		}
		if img != nil {
			images = append(images, img)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reverifyLimit)
	for _, img := range images {
		token, err := v.registry.AttachImage(img.Item, img)
		if err != nil {
			// Removed since the lookup above.
			continue
		}
		g.Go(func() error {
			v.extract(gctx, img, token)
			return nil
		})
	}
	return g.Wait()
}

// Wait blocks until every background extraction has finished.
func (v *Verifier) Wait() {
	v.wg.Wait()
}

func (v *Verifier) extract(ctx context.Context, img *capture.CapturedImage, token uint64) {
	result, err := v.reader.ReadScale(ctx, img.Data(), img.ContentType)

	var extracted Extracted
	switch {
	case err != nil:
		// A failed call is an unreadable photo; the operator can retake or type the value.
		slog.Warn("Failed to read scale photo", "item", img.Item, "image_id", img.ID, "error", err)
		extracted = Unreadable()
	case !result.Readable:
		slog.Info("Scale photo unreadable", "item", img.Item, "image_id", img.ID, "raw", result.Raw)
		extracted = Unreadable()
	default:
		extracted = Reading(result.Value)
	}

	entry, applied := v.registry.CompleteExtraction(img.Item, token, extracted)
	if !applied {
		slog.Debug("Dropped stale scale reading", "item", img.Item, "image_id", img.ID)
		return
	}
	slog.Info("Scale photo read", "item", entry.Key, "extracted", entry.Extracted, "status", entry.Status)
}
