package ingest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// Transferer moves one file's bytes to the server.
type Transferer interface {
	Upload(ctx context.Context, file models.File, progress docapi.ProgressFunc, timeout time.Duration) (*docapi.UploadResult, error)
}

// StageRunner invokes one post-upload stage for a stored document.
type StageRunner interface {
	RunStage(ctx context.Context, stage docapi.Stage, remoteID string) error
}

// Navigator opens the detail view of a finished document.
type Navigator interface {
	Navigate(remoteID string)
}

type NavigatorFunc func(remoteID string)

func (f NavigatorFunc) Navigate(remoteID string) { f(remoteID) }

// OutcomeSink observes items as they reach a terminal status. stage is the
// failing stage of a partial item and empty otherwise.
type OutcomeSink interface {
	ItemSettled(ctx context.Context, item models.UploadItem, stage docapi.Stage)
}

type Config struct {
	UploadTimeout time.Duration
	StageTimeout  time.Duration // 0 leaves stage calls unbounded
	NavigateDelay time.Duration
	MaxConcurrent int // 0 runs every item at once
}

func DefaultConfig() Config {
	return Config{
		UploadTimeout: 10 * time.Minute,
		StageTimeout:  5 * time.Minute,
		NavigateDelay: 1500 * time.Millisecond,
	}
}

// BatchResult is what Submit resolves to once every item has settled.
// Items removed while the batch ran are absent.
type BatchResult struct {
	Items            []models.UploadItem `json:"items"`
	NavigationTarget string              `json:"navigationTarget,omitempty"`
}

type Orchestrator struct {
	transfer  Transferer
	stages    StageRunner
	navigator Navigator
	sinks     []OutcomeSink
	guard     *Guard
	store     *store
	config    Config
	logger    logger.Logger
}

type Option func(*Orchestrator)

func WithNavigator(n Navigator) Option {
	return func(o *Orchestrator) { o.navigator = n }
}

func WithOutcomeSink(sink OutcomeSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithGuard shares a lifecycle guard owned by the caller.
func WithGuard(g *Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

func New(transfer Transferer, stages StageRunner, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transfer: transfer,
		stages:   stages,
		store:    newStore(),
		config:   cfg,
		logger:   log.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = NewGuard()
	}
	o.guard.OnTeardown(o.store.closeSubscribers)
	return o
}

// Submit runs the batch and returns once every item is terminal (or the
// orchestrator was torn down). It never fails; per-item failures are item state.
func (o *Orchestrator) Submit(ctx context.Context, files []models.File) *BatchResult {
	_, done := o.Start(ctx, files)
	return <-done
}

// Start registers one item per file and runs them in the background. The
// returned channel yields the batch result once and is then closed.
func (o *Orchestrator) Start(ctx context.Context, files []models.File) ([]string, <-chan *BatchResult) {
	done := make(chan *BatchResult, 1)
	ids := make([]string, 0, len(files))

	for _, file := range files {
		item := models.UploadItem{
			ID:     NewItemID(),
			File:   file,
			Status: models.StatusUploading,
		}
		registered := o.guard.Do(func() {
			snapshot := o.store.add(item)
			o.store.publish(Event{Type: EventItemUpdated, Item: &snapshot})
		})
		if !registered {
			break
		}
		ids = append(ids, item.ID)
	}

	if len(ids) == 0 {
		done <- &BatchResult{}
		close(done)
		return ids, done
	}

	o.logger.Info("Batch submitted", logger.Int("files", len(ids)))

	go func() {
		defer close(done)

		var g errgroup.Group
		if o.config.MaxConcurrent > 0 {
			g.SetLimit(o.config.MaxConcurrent)
		}
		for i, id := range ids {
			file := files[i]
			g.Go(func() error {
				o.run(ctx, id, file)
				return nil
			})
		}
		_ = g.Wait()

		result := &BatchResult{Items: make([]models.UploadItem, 0, len(ids))}
		for _, id := range ids {
			if item, ok := o.store.get(id); ok {
				result.Items = append(result.Items, item)
			}
		}

		if len(files) == 1 && len(result.Items) == 1 && result.Items[0].Status == models.StatusSuccess {
			if o.scheduleNavigation(result.Items[0].RemoteID) {
				result.NavigationTarget = result.Items[0].RemoteID
			}
		}
		done <- result
	}()

	return ids, done
}

// run drives one item: transfer, then extract, then index.
func (o *Orchestrator) run(ctx context.Context, id string, file models.File) {
	log := o.logger.With(logger.ItemID(id), logger.String("filename", file.Name))

	transferCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(id, cancel)
	if !o.guard.Register(handle) {
		cancel()
		return
	}

	result, err := o.transfer.Upload(transferCtx, file, func(percent int) {
		o.mutate(id, progressed(percent))
	}, o.config.UploadTimeout)
	o.guard.Release(handle)

	if err != nil {
		if handle.Cancelled() {
			log.Debug("Transfer cancelled")
			return
		}
		message := docapi.Message(err)
		if errors.Is(err, docapi.ErrCanceled) {
			message = "Upload cancelled"
		}
		log.Warn("Transfer failed", logger.Error(err))
		o.settle(ctx, id, failed(message), "")
		return
	}

	if _, ok := o.mutate(id, transferred(result.DocumentID)); !ok {
		// removed or torn down while the transfer finished
		return
	}
	remoteID := result.DocumentID
	log = log.With(logger.DocumentID(remoteID))

	if err := o.runStage(ctx, docapi.StageExtract, remoteID); err != nil {
		log.Warn("Text extraction failed", logger.Error(err))
		o.settle(ctx, id, partial(docapi.StageExtract, docapi.Message(err)), docapi.StageExtract)
		return
	}
	if _, ok := o.mutate(id, extracted()); !ok {
		return
	}

	if err := o.runStage(ctx, docapi.StageIndex, remoteID); err != nil {
		log.Warn("Indexing failed", logger.Error(err))
		o.settle(ctx, id, partial(docapi.StageIndex, docapi.Message(err)), docapi.StageIndex)
		return
	}
	o.settle(ctx, id, succeeded(), "")
}

func (o *Orchestrator) runStage(ctx context.Context, stage docapi.Stage, remoteID string) error {
	if o.config.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.StageTimeout)
		defer cancel()
	}
	return o.stages.RunStage(ctx, stage, remoteID)
}

func (o *Orchestrator) mutate(id string, t transition) (models.UploadItem, bool) {
	var (
		snapshot models.UploadItem
		changed  bool
	)
	o.guard.Do(func() {
		snapshot, changed = o.store.update(id, t.apply)
		if changed {
			o.store.publish(Event{Type: EventItemUpdated, Item: &snapshot})
		}
	})
	return snapshot, changed
}

func (o *Orchestrator) settle(ctx context.Context, id string, t transition, stage docapi.Stage) {
	item, ok := o.mutate(id, t)
	if !ok {
		return
	}

	o.logger.Info("Item settled",
		logger.ItemID(id),
		logger.String("status", string(item.Status)),
		logger.DocumentID(item.RemoteID),
		logger.String("error", item.Error),
	)

	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		sink.ItemSettled(sinkCtx, item, stage)
	}
}

func (o *Orchestrator) scheduleNavigation(remoteID string) bool {
	return o.guard.AfterFunc(o.config.NavigateDelay, func() {
		published := o.guard.Do(func() {
			o.store.publish(Event{Type: EventNavigate, RemoteID: remoteID})
		})
		if published && o.navigator != nil {
			o.navigator.Navigate(remoteID)
		}
	})
}

// Remove cancels the item's transfer if still active and stops tracking it.
// Unknown ids are ignored.
func (o *Orchestrator) Remove(id string) bool {
	if o.guard.Cancel(id) {
		o.logger.Info("Transfer cancelled by removal", logger.ItemID(id))
	}

	removed := false
	o.guard.Do(func() {
		removed = o.store.remove(id)
		if removed {
			o.store.publish(Event{Type: EventItemRemoved, ItemID: id})
		}
	})
	return removed
}

// Items returns the tracked items in submission order.
func (o *Orchestrator) Items() []models.UploadItem {
	return o.store.snapshot()
}

func (o *Orchestrator) Item(id string) (models.UploadItem, bool) {
	return o.store.get(id)
}

// Subscribe streams events until unsubscribe is called or the orchestrator
// is torn down.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	return o.store.subscribe(buffer)
}

// Close tears down the owning view: in-flight transfers are cancelled,
// pending navigation is dropped and no further state changes are made.
func (o *Orchestrator) Close() {
	o.guard.Teardown()
}

func (o *Orchestrator) Closed() bool {
	return !o.guard.Mounted()
}
