// Package extensions loads the agent's feature modules. Each module is an
// opaque named unit registered by a Factory; a module that fails to load is
// reported and skipped without affecting the others.
package extensions

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/stake-plus/chat-agent/src/commands"
	"go.uber.org/zap"
)

// Default is the fixed load order of the agent's feature modules.
var Default = []string{"moderation", "utility", "fun", "music", "economy", "admin"}

// ErrNotRegistered is returned for names without a registered factory.
var ErrNotRegistered = errors.New("extensions: not registered")

// Host receives the commands an extension contributes.
type Host interface {
	AddCommand(cmd *commands.Command) error
	AddSlashCommand(cmd *commands.SlashCommand) error
}

// Remover undoes registrations on a Host when a load is rolled back.
type Remover interface {
	RemoveCommand(name string)
	RemoveSlashCommand(name string)
}

// Extension is a self-contained bundle of commands.
type Extension interface {
	Name() string
	Start(ctx context.Context, host Host) error
	Stop(ctx context.Context)
}

// Factory builds a fresh Extension.
type Factory func() (Extension, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes an extension loadable under name. Packages call it from init.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[normalizeName(name)] = factory
}

func lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[normalizeName(name)]
	return f, ok && f != nil
}

// Descriptor is the outcome of one load attempt.
type Descriptor struct {
	Name      string `json:"name"`
	Loaded    bool   `json:"loaded"`
	LastError string `json:"lastError,omitempty"`
}

// Loader loads extensions into a Host.
type Loader struct {
	log    *zap.Logger
	host   Host
	lookup func(string) (Factory, bool)

	mu     sync.Mutex
	loaded []Extension
}

// NewLoader returns a loader registering commands on host.
func NewLoader(log *zap.Logger, host Host) *Loader {
	return &Loader{log: log, host: host, lookup: lookup}
}

// Load attempts every name in order and returns one descriptor per name.
// A failing extension never prevents the next one from loading.
func (l *Loader) Load(ctx context.Context, names []string) []Descriptor {
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		desc := Descriptor{Name: name}
		ext, err := l.loadOne(ctx, name)
		if err != nil {
			desc.LastError = err.Error()
			if desc.LastError == "" {
				desc.LastError = "unknown error"
			}
			l.log.Error(fmt.Sprintf("Failed to load %s: %s", name, desc.LastError))
		} else {
			desc.Loaded = true
			l.mu.Lock()
			l.loaded = append(l.loaded, ext)
			l.mu.Unlock()
			l.log.Info("Loaded " + name)
		}
		out = append(out, desc)
	}
	return out
}

func (l *Loader) loadOne(ctx context.Context, name string) (ext Extension, err error) {
	staged := &stagingHost{}
	defer func() {
		if rec := recover(); rec != nil {
			ext = nil
			err = fmt.Errorf("panic: %v", rec)
			l.log.Debug("extension panic", zap.String("extension", name), zap.ByteString("stack", debug.Stack()))
		}
	}()

	factory, ok := l.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	ext, err = factory()
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("extensions: factory for %q returned nil", name)
	}
	if err := ext.Start(ctx, staged); err != nil {
		return nil, err
	}
	if err := staged.commit(l.host); err != nil {
		ext.Stop(ctx)
		return nil, err
	}
	return ext, nil
}

// Unload stops every loaded extension in reverse load order.
func (l *Loader) Unload(ctx context.Context) {
	l.mu.Lock()
	loaded := l.loaded
	l.loaded = nil
	l.mu.Unlock()

	for i := len(loaded) - 1; i >= 0; i-- {
		ext := loaded[i]
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					l.log.Error(fmt.Sprintf("Failed to unload %s: panic: %v", ext.Name(), rec))
				}
			}()
			ext.Stop(ctx)
		}()
		l.log.Info("Unloaded " + ext.Name())
	}
}

// stagingHost buffers registrations so an extension is applied all at once.
type stagingHost struct {
	commands []*commands.Command
	slash    []*commands.SlashCommand
}

func (s *stagingHost) AddCommand(cmd *commands.Command) error {
	if cmd == nil {
		return fmt.Errorf("extensions: nil command")
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *stagingHost) AddSlashCommand(cmd *commands.SlashCommand) error {
	if cmd == nil {
		return fmt.Errorf("extensions: nil slash command")
	}
	s.slash = append(s.slash, cmd)
	return nil
}

func (s *stagingHost) commit(host Host) error {
	var added []*commands.Command
	var addedSlash []*commands.SlashCommand
	rollback := func() {
		remover, ok := host.(Remover)
		if !ok {
			return
		}
		for _, cmd := range added {
			remover.RemoveCommand(cmd.Name)
		}
		for _, cmd := range addedSlash {
			remover.RemoveSlashCommand(cmd.Name())
		}
	}

	for _, cmd := range s.commands {
		if err := host.AddCommand(cmd); err != nil {
			rollback()
			return err
		}
		added = append(added, cmd)
	}
	for _, cmd := range s.slash {
		if err := host.AddSlashCommand(cmd); err != nil {
			rollback()
			return err
		}
		addedSlash = append(addedSlash, cmd)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
