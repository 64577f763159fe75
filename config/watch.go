package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/warp/assignment-engine/factory"
	"github.com/warp/assignment-engine/generic"
)

// PolicyWatcher seeds the working-hours policy from a file and re-seeds it
// whenever the file is written. A document that fails to parse is logged and
// the stored policy is left untouched.
type PolicyWatcher struct {
	path    string
	factory *factory.PolicyFactory
	writer  generic.ConfigWriter
	logger  *slog.Logger

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

func NewPolicyWatcher(path string, writer generic.ConfigWriter, logger *slog.Logger) *PolicyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyWatcher{
		path:    filepath.Clean(path),
		factory: factory.NewPolicyFactory(),
		writer:  writer,
		logger:  logger.With("component", "policy_watcher", "file", path),
	}
}

// Seed parses the file and stores it.
func (w *PolicyWatcher) Seed(ctx context.Context) error {
	doc, err := w.factory.ParseFile(w.path)
	if err != nil {
		return err
	}
	if err := w.factory.Apply(ctx, w.writer, doc); err != nil {
		return err
	}
	w.logger.Info("policy seeded",
		"max_daily_hours", doc.WorkingHours.Common.MaxDailyHours,
		"season_section", doc.Season != nil)
	return nil
}

// Run watches the file's directory until ctx is cancelled. Editors often
// replace a file instead of writing it in place, so Create counts as a change.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching policy file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("fsnotify event", "op", event.Op.String())
				w.reload(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

func (w *PolicyWatcher) reload(ctx context.Context) {
	err := w.Seed(ctx)
	if err != nil {
		w.logger.Error("policy reload failed, keeping previous policy", "error", err)
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
