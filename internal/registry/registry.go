package registry

import (
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/Tyrowin/linechat/internal/registry Sink

// Sink is the output side of one session. Enqueue must never block: a full
// or closed sink reports false and the line is lost.
type Sink interface {
	Enqueue(line string) bool
}

// member is the single entry kept per name. The block set and the admin flag
// live inside it so that removing the entry revokes all of them at once.
type member struct {
	sink     Sink
	joinedAt time.Time
	admin    atomic.Bool

	mu      sync.RWMutex
	blocked map[string]struct{}
}

// Member is a point-in-time copy of one registered session.
type Member struct {
	Name     string
	Sink     Sink
	Admin    bool
	JoinedAt time.Time
	blocked  map[string]struct{}
}

// Blocks reports whether this member had blocked name when the copy was taken.
func (m Member) Blocks(name string) bool {
	_, ok := m.blocked[name]
	return ok
}

// Registry is the Session Registry, Block-List Store and Admin Set in one.
// It is safe for concurrent use.
type Registry struct {
	members Store[string, *member]
	now     func() time.Time
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		members: NewStore[string, *member](),
		now:     time.Now,
	}
}

// Register inserts name if it is free and creates its empty block set.
// It returns false when name is empty or already taken.
func (r *Registry) Register(name string, sink Sink) bool {
	if name == "" || sink == nil {
		return false
	}
	m := &member{
		sink:     sink,
		joinedAt: r.now(),
		blocked:  make(map[string]struct{}),
	}
	_, loaded := r.members.LoadOrStore(name, m)
	return !loaded
}

// Deregister removes name together with its block set and admin membership.
// Only the owner of the entry, identified by the sink it registered with,
// can remove it; a stale owner gets false.
func (r *Registry) Deregister(name string, sink Sink) bool {
	m, ok := r.members.Load(name)
	if !ok || m.sink != sink {
		return false
	}
	return r.members.CompareAndDelete(name, m)
}

// Lookup returns the sink registered under name.
func (r *Registry) Lookup(name string) (Sink, bool) {
	m, ok := r.members.Load(name)
	if !ok {
		return nil, false
	}
	return m.sink, true
}

// Contains reports whether name is currently registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.members.Load(name)
	return ok
}

// Size returns the number of registered sessions.
func (r *Registry) Size() int {
	return r.members.Len()
}

// Block adds target to owner's block set.
func (r *Registry) Block(owner, target string) error {
	if owner == target {
		return ErrSelfBlock
	}
	m, ok := r.members.Load(owner)
	if !ok {
		return ErrUnknownName
	}
	m.mu.Lock()
	m.blocked[target] = struct{}{}
	m.mu.Unlock()
	return nil
}

// Unblock removes target from owner's block set.
func (r *Registry) Unblock(owner, target string) error {
	if owner == target {
		return ErrSelfBlock
	}
	m, ok := r.members.Load(owner)
	if !ok {
		return ErrUnknownName
	}
	m.mu.Lock()
	delete(m.blocked, target)
	m.mu.Unlock()
	return nil
}

// IsBlocked reports whether owner has blocked target.
func (r *Registry) IsBlocked(owner, target string) bool {
	m, ok := r.members.Load(owner)
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, blocked := m.blocked[target]
	return blocked
}

// GrantAdmin gives name administrator privilege. It returns false when name
// is not registered.
func (r *Registry) GrantAdmin(name string) bool {
	m, ok := r.members.Load(name)
	if !ok {
		return false
	}
	m.admin.Store(true)
	return true
}

// IsAdmin reports whether name currently holds administrator privilege.
func (r *Registry) IsAdmin(name string) bool {
	m, ok := r.members.Load(name)
	return ok && m.admin.Load()
}

// Snapshot copies every registered member, including its block set, so a
// caller can fan out one message against a single view of the chat.
func (r *Registry) Snapshot() []Member {
	members := make([]Member, 0, r.members.Len())
	r.members.Range(func(name string, m *member) bool {
		m.mu.RLock()
		blocked := maps.Clone(m.blocked)
		m.mu.RUnlock()

		members = append(members, Member{
			Name:     name,
			Sink:     m.sink,
			Admin:    m.admin.Load(),
			JoinedAt: m.joinedAt,
			blocked:  blocked,
		})
		return true
	})
	return members
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	names := lo.Map(r.Snapshot(), func(m Member, _ int) string {
		return m.Name
	})
	sort.Strings(names)
	return names
}
