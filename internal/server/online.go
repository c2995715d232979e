package server

import (
	"sort"
	"sync"

	"parley/pkg/types"
)

// onlineIndex is the server-owned list of currently logged-in users, used for
// presence listings and online-list broadcasts. It is injected into every
// connection handler rather than living in package state.
type onlineIndex struct {
	mu    sync.RWMutex
	users map[string]*types.User
}

func newOnlineIndex() *onlineIndex {
	return &onlineIndex{users: make(map[string]*types.User)}
}

func (o *onlineIndex) add(u *types.User) {
	if u == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.users[u.ID] = u
}

// remove drops the entry only when it still belongs to this user object, so
// a stale handler's cleanup cannot remove a newer login's entry.
func (o *onlineIndex) remove(u *types.User) {
	if u == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.users[u.ID] == u {
		delete(o.users, u.ID)
	}
}

// list returns the online users sorted by username for stable output.
func (o *onlineIndex) list() []*types.User {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*types.User, 0, len(o.users))
	for _, u := range o.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
