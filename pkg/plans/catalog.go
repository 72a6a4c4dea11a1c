package plans

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// catalogFile is the on-disk layout of a plan catalog
type catalogFile struct {
	Plans []*Plan `yaml:"plans"`
}

// Catalog is a Source backed by a YAML file. The plan set is swapped
// atomically on reload so readers never observe a partial catalog.
type Catalog struct {
	path    string
	plans   atomic.Pointer[map[string]*Plan]
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewCatalog loads the catalog at path. metrics and logger may be nil.
func NewCatalog(path string, metrics *observability.Metrics, logger *observability.Logger) (*Catalog, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Catalog{
		path:    path,
		metrics: metrics,
		logger:  logger.WithField("component", "plan_catalog"),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStaticCatalog builds an in-memory catalog from plans
func NewStaticCatalog(plans ...*Plan) (*Catalog, error) {
	c := &Catalog{logger: observability.NopLogger()}
	set, err := index(plans)
	if err != nil {
		return nil, err
	}
	c.plans.Store(&set)
	return c, nil
}

// ParseCatalog decodes and validates catalog YAML
func ParseCatalog(data []byte) ([]*Plan, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if _, err := index(file.Plans); err != nil {
		return nil, err
	}
	return file.Plans, nil
}

func index(plans []*Plan) (map[string]*Plan, error) {
	set := make(map[string]*Plan, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		set[p.ID] = p
	}
	return set, nil
}

// Reload re-reads the catalog file. On error the previous catalog stays in place.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		c.observeReload("error")
		return fmt.Errorf("failed to read plan catalog: %w", err)
	}
	plans, err := ParseCatalog(data)
	if err != nil {
		c.observeReload("error")
		return err
	}

	set := make(map[string]*Plan, len(plans))
	for _, p := range plans {
		if len(p.Features.Unknown) > 0 {
			c.logger.WithFields(map[string]interface{}{
				"plan_id":  p.ID,
				"features": p.Features.Unknown,
			}).Warn("ignoring unknown plan features")
		}
		set[p.ID] = p
	}
	c.plans.Store(&set)
	c.observeReload("success")
	c.logger.WithField("plans", len(set)).Info("plan catalog loaded")
	return nil
}

func (c *Catalog) observeReload(status string) {
	if c.metrics != nil {
		c.metrics.PlanReloadsTotal.WithLabelValues(status).Inc()
	}
}

// GetPlan returns the plan with id
func (c *Catalog) GetPlan(ctx context.Context, id string) (*Plan, error) {
	set := c.plans.Load()
	if set == nil {
		return nil, ErrPlanNotFound
	}
	p, ok := (*set)[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return p, nil
}

// List returns all plans ordered by id
func (c *Catalog) List() []*Plan {
	set := c.plans.Load()
	if set == nil {
		return nil
	}
	out := make([]*Plan, 0, len(*set))
	for _, p := range *set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched so editor rename-and-replace saves are seen.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return fmt.Errorf("catalog has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.path, err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(c.logger, "plan catalog watcher")

		target := filepath.Clean(c.path)
		// Debounce bursts of events from a single save.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(100 * time.Millisecond)
				}
			case <-pending:
				pending = nil
				if err := c.Reload(); err != nil {
					c.logger.WithError(err).Error("plan catalog reload failed, keeping previous catalog")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.WithError(err).Warn("plan catalog watcher error")
			}
		}
	}()
	return nil
}
