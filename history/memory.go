package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/liamcoop/campaignrules/rules"
)

// MemoryRecorder keeps history in process, used when no database is configured.
// Each campaign keeps at most perCampaign snapshots and each account at most
// perAccount actions; the oldest are dropped first.
type MemoryRecorder struct {
	snapshots   map[string][]*rules.Snapshot
	actions     map[string][]*ActionEvent
	perCampaign int
	perAccount  int
	nextID      int64
	mu          sync.RWMutex
}

func NewMemoryRecorder(perCampaign, perAccount int) *MemoryRecorder {
	return &MemoryRecorder{
		snapshots:   make(map[string][]*rules.Snapshot),
		actions:     make(map[string][]*ActionEvent),
		perCampaign: perCampaign,
		perAccount:  perAccount,
	}
}

func campaignKey(accountID, campaignID string) string {
	return accountID + "/" + campaignID
}

func (m *MemoryRecorder) RecordSnapshot(_ context.Context, s *rules.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := campaignKey(s.AccountID, s.CampaignID)
	stored := *s
	list := append(m.snapshots[key], &stored)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CapturedAt.Before(list[j].CapturedAt) })
	if m.perCampaign > 0 && len(list) > m.perCampaign {
		list = list[len(list)-m.perCampaign:]
	}
	m.snapshots[key] = list
	return nil
}

func (m *MemoryRecorder) RecordAction(_ context.Context, evt *ActionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	evt.ID = m.nextID
	stored := *evt
	list := append(m.actions[evt.AccountID], &stored)
	if m.perAccount > 0 && len(list) > m.perAccount {
		list = list[len(list)-m.perAccount:]
	}
	m.actions[evt.AccountID] = list
	return nil
}

func (m *MemoryRecorder) Snapshots(_ context.Context, accountID, campaignID string, limit int) ([]*rules.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.snapshots[campaignKey(accountID, campaignID)]
	limit = normalizeLimit(limit)

	out := make([]*rules.Snapshot, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		s := *list[i]
		out = append(out, &s)
	}
	return out, nil
}

func (m *MemoryRecorder) Actions(_ context.Context, accountID string, limit int) ([]*ActionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.actions[accountID]
	limit = normalizeLimit(limit)

	out := make([]*ActionEvent, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		evt := *list[i]
		out = append(out, &evt)
	}
	return out, nil
}

func (m *MemoryRecorder) PruneSnapshots(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for key, list := range m.snapshots {
		// list is sorted by capture time
		cut := sort.Search(len(list), func(i int) bool { return !list[i].CapturedAt.Before(before) })
		pruned += int64(cut)
		if cut == len(list) {
			delete(m.snapshots, key)
			continue
		}
		m.snapshots[key] = append([]*rules.Snapshot(nil), list[cut:]...)
	}
	return pruned, nil
}

func (m *MemoryRecorder) DeleteAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := accountID + "/"
	for key := range m.snapshots {
		if strings.HasPrefix(key, prefix) {
			delete(m.snapshots, key)
		}
	}
	delete(m.actions, accountID)
	return nil
}

func (m *MemoryRecorder) Close() error { return nil }
