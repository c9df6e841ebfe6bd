package cmd

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/coreclaw/agentcore/internal/agent"
	"github.com/coreclaw/agentcore/internal/channels"
	"github.com/coreclaw/agentcore/internal/config"
	"github.com/coreclaw/agentcore/internal/tools"
)

// watchConfig reloads cfg from cfgPath whenever the file changes on disk and
// re-applies the tool policy and gateway rate limit onto loop — the two
// pieces of config the Agent Loop can safely hot-swap without restarting any
// already-running channel or provider connection. Channel allow-lists are
// not reloaded: adapters keep the values they were constructed with. Runs
// until ctx is cancelled; watcher setup failures are logged and non-fatal,
// since a missing fsnotify backend should never block startup.
func watchConfig(ctx context.Context, cfgPath string, cfg *config.Config, loop *agent.Loop) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watch disabled: could not create watcher", "error", err)
		return
	}
	if err := watcher.Add(cfgPath); err != nil {
		slog.Warn("config watch disabled: could not watch config file", "path", cfgPath, "error", err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloadConfig(cfgPath, cfg, loop)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watch error", "error", err)
			}
		}
	}()
}

func reloadConfig(cfgPath string, cfg *config.Config, loop *agent.Loop) {
	fresh, err := config.Load(cfgPath)
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	cfg.ReplaceFrom(fresh)

	policy := tools.Policy{Profile: cfg.Tools.Profile, Allow: cfg.Tools.Allow, Deny: cfg.Tools.Deny, AlsoAllow: cfg.Tools.AlsoAllow}
	loop.SetPolicy(tools.NewPolicyEngine(policy))
	loop.SetRateLimiter(channels.NewRateLimiter(cfg.Gateway.RateLimitRPM))

	slog.Info("config reloaded", "path", cfgPath)
}
