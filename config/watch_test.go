package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghettovoice/sipproxy/config"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

type nopStack struct{}

func (nopStack) SubmitRequest(context.Context, proxy.BranchID, *proxy.Request) error { return nil }
func (nopStack) CancelBranch(context.Context, proxy.BranchID) error                  { return nil }
func (nopStack) AckBranch(context.Context, proxy.BranchID, bool) error               { return nil }
func (nopStack) Respond(context.Context, *proxy.Request, *proxy.Response) error      { return nil }

type routeUpdate struct {
	routes  []proxy.Route
	filters []proxy.FilterRule
}

type recUpdater chan routeUpdate

func (u recUpdater) UpdateRoutes(routes []proxy.Route, filters []proxy.FilterRule) error {
	u <- routeUpdate{routes, filters}
	return nil
}

type reloadResult struct {
	cfg *config.Config
	err error
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sipproxy.yaml")
	write := func(data string) {
		t.Helper()

		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("os.WriteFile() error = %v, want nil", err)
		}
	}
	wait := func(ch <-chan reloadResult) reloadResult {
		t.Helper()

		select {
		case r := <-ch:
			return r
		case <-time.After(3 * time.Second):
			t.Fatalf("no reload within 3s")
			return reloadResult{}
		}
	}
	write("domains: [example.com]\n")

	updates := make(recUpdater, 8)
	reloads := make(chan reloadResult, 8)
	w, err := config.NewWatcher(path, updates, &config.WatcherOptions{
		Debounce: 20 * time.Millisecond,
		OnReload: func(cfg *config.Config, err error) { reloads <- reloadResult{cfg, err} },
		Logger:   log.Noop,
	})
	if err != nil {
		t.Fatalf("config.NewWatcher() error = %v, want nil", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			t.Errorf("w.Close() error = %v, want nil", err)
		}
	}()
	if w.Last() != nil {
		t.Fatalf("w.Last() = %v before reload, want nil", w.Last())
	}

	write("domains: [example.com]\nroutes: [{match: '^sip:1', targets: [{uri: 'sip:gw@10.0.0.1'}]}]\n")
	if r := wait(reloads); r.err != nil {
		t.Fatalf("reload error = %v, want nil", r.err)
	}
	upd := <-updates
	if len(upd.routes) != 1 || upd.routes[0].Targets[0].URI != "sip:gw@10.0.0.1" {
		t.Fatalf("updated routes = %+v, want one route to sip:gw@10.0.0.1", upd.routes)
	}
	if w.Last() == nil || len(w.Last().Routes) != 1 {
		t.Fatalf("w.Last() = %v, want reloaded config", w.Last())
	}

	write("domains: [example.com]\nforking: {mode: random}\n")
	if r := wait(reloads); r.err == nil {
		t.Fatalf("reload error = nil, want error")
	}
	if got := len(w.Last().Routes); got != 1 {
		t.Fatalf("len(w.Last().Routes) = %d after failed reload, want 1", got)
	}
	select {
	case upd := <-updates:
		t.Fatalf("unexpected route update %+v", upd)
	default:
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "nope", "sipproxy.yaml"), make(recUpdater), nil); err == nil {
		t.Fatalf("config.NewWatcher() error = nil, want error")
	}
}
