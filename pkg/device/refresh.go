package device

import (
	"context"

	"golang.org/x/sync/errgroup"

	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/metrics"
	"wallctl-go/pkg/state"
	"wallctl-go/pkg/wire"
)

// listCollection fetches one entity list, accepting nested and
// flattened response shapes. An absent field decodes as an empty list.
func listCollection[T any](ctx context.Context, c *Client, method, field string, params interface{}) ([]T, error) {
	msg, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var out []T
	if _, err := wire.ResultField(msg, field, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func displayParams(displayID int) map[string]int {
	return map[string]int{"display_id": displayID}
}

// ListDisplays queries the device's display collection.
func (c *Client) ListDisplays(ctx context.Context) ([]state.Display, error) {
	return listCollection[state.Display](ctx, c, MethodListDisplays, "displays", nil)
}

// ListLayouts queries the device's layout collection.
func (c *Client) ListLayouts(ctx context.Context) ([]state.Layout, error) {
	return listCollection[state.Layout](ctx, c, MethodListLayouts, "layouts", nil)
}

// ListSnapshots queries the device's snapshot collection.
func (c *Client) ListSnapshots(ctx context.Context) ([]state.Snapshot, error) {
	return listCollection[state.Snapshot](ctx, c, MethodListSnapshots, "snapshots", nil)
}

// ListWindows queries one display's windows.
func (c *Client) ListWindows(ctx context.Context, displayID int) ([]state.Window, error) {
	return listCollection[state.Window](ctx, c, MethodListWindows, "windows", displayParams(displayID))
}

// ListInputs queries one display's inputs.
func (c *Client) ListInputs(ctx context.Context, displayID int) ([]state.Input, error) {
	return listCollection[state.Input](ctx, c, MethodListInputs, "inputs", displayParams(displayID))
}

// RefreshAll rebuilds the cache wholesale: the three top-level list
// queries run concurrently and any failure among them aborts the
// refresh, leaving the prior cache contents intact. The per-display
// window/input fetches then run sequentially; a failure there is
// tolerated and yields empty collections for that display only.
func (c *Client) RefreshAll(ctx context.Context) error {
	done := metrics.Global().RefreshDuration.Timer()
	defer done()

	var (
		displays  []state.Display
		layouts   []state.Layout
		snapshots []state.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		displays, err = c.ListDisplays(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		layouts, err = c.ListLayouts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snapshots, err = c.ListSnapshots(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, errors.ErrRuntime, "full refresh aborted")
	}

	c.cache.ReplaceAll(displays, layouts, snapshots)

	for _, d := range displays {
		windows, werr := c.ListWindows(ctx, d.ID)
		if werr != nil {
			c.logger.WithError(werr).Warn("window fetch failed for display %d; using empty list", d.ID)
			windows = nil
		}
		inputs, ierr := c.ListInputs(ctx, d.ID)
		if ierr != nil {
			c.logger.WithError(ierr).Warn("input fetch failed for display %d; using empty list", d.ID)
			inputs = nil
		}
		c.cache.SetDisplayIO(d.ID, windows, inputs)
	}

	c.logger.Info("refreshed cache: %d displays, %d layouts, %d snapshots",
		len(displays), len(layouts), len(snapshots))
	return nil
}

// refreshDisplayIO re-fetches one display's windows and inputs after a
// display notification. Best effort: failures are logged and the stale
// collections stay in place.
func (c *Client) refreshDisplayIO(displayID int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	windows, werr := c.ListWindows(ctx, displayID)
	inputs, ierr := c.ListInputs(ctx, displayID)
	if werr != nil || ierr != nil {
		c.logger.Debug("secondary fetch for display %d failed (windows=%v inputs=%v); keeping stale state",
			displayID, werr, ierr)
		return
	}
	c.cache.SetDisplayIO(displayID, windows, inputs)
}
