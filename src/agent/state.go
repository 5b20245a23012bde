package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/stake-plus/chat-agent/src/embeds"
	"github.com/stake-plus/chat-agent/src/extensions"
)

// Phase is a step of the startup state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfiguring
	PhaseLoadingExtensions
	PhaseSyncingCommands
	PhaseReady
	PhaseFailed
	PhaseStopped
)

var phaseNames = map[Phase]string{
	PhaseIdle:              "idle",
	PhaseConfiguring:       "configuring",
	PhaseLoadingExtensions: "loading_extensions",
	PhaseSyncingCommands:   "syncing_commands",
	PhaseReady:             "ready",
	PhaseFailed:            "failed",
	PhaseStopped:           "stopped",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the process-wide agent state.
type State struct {
	mu           sync.RWMutex
	phase        Phase
	extensions   []extensions.Descriptor
	readyCount   int
	readyAt      time.Time
	announcement *embeds.Notification
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Phase        Phase                   `json:"phase"`
	Extensions   []extensions.Descriptor `json:"extensions"`
	ReadyCount   int                     `json:"readyCount"`
	ReadyAt      time.Time               `json:"readyAt,omitempty"`
	Announcement *embeds.Notification    `json:"-"`
}

// Loaded returns the names of the extensions that loaded.
func (s Snapshot) Loaded() []string {
	var names []string
	for _, d := range s.Extensions {
		if d.Loaded {
			names = append(names, d.Name)
		}
	}
	return names
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *State) setExtensions(descs []extensions.Descriptor) {
	s.mu.Lock()
	s.extensions = append([]extensions.Descriptor(nil), descs...)
	s.mu.Unlock()
}

func (s *State) enterReady(at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseReady
	s.readyCount++
	s.readyAt = at
	return s.readyCount
}

func (s *State) setAnnouncement(n embeds.Notification) {
	s.mu.Lock()
	s.announcement = &n
	s.mu.Unlock()
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Phase:      s.phase,
		Extensions: append([]extensions.Descriptor(nil), s.extensions...),
		ReadyCount: s.readyCount,
		ReadyAt:    s.readyAt,
	}
	if s.announcement != nil {
		n := *s.announcement
		snap.Announcement = &n
	}
	return snap
}
