package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/filegate/filegate/core/infra/config"
)

type fakeStore struct {
	data   map[string][]byte
	index  []string
	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *fakeStore) IndexAppend(_ context.Context, member string) error {
	s.index = append(s.index, member)
	return nil
}

func (s *fakeStore) IndexScan(_ context.Context) ([]string, error) {
	return append([]string(nil), s.index...), nil
}

func (s *fakeStore) seedRecord(t *testing.T, rec TransferRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	s.data[recordKey(rec.GUID)] = data
	s.index = append(s.index, rec.GUID)
}

func (s *fakeStore) seedBinding(guid string, downloadID int64) {
	s.data[bindingKey(downloadID)] = []byte(guid)
	s.data[reverseKey(guid)] = []byte(strconv.FormatInt(downloadID, 10))
}

func (s *fakeStore) record(t *testing.T, guid string) *TransferRecord {
	t.Helper()
	data, ok := s.data[recordKey(guid)]
	if !ok {
		t.Fatalf("record %s not stored", guid)
	}
	var rec TransferRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode record %s: %v", guid, err)
	}
	return &rec
}

type fakeHost struct {
	items     map[int64]*DownloadItem
	calls     []string
	searchErr error
	opErr     error
}

func (h *fakeHost) Search(_ context.Context, id int64) (*DownloadItem, error) {
	h.calls = append(h.calls, fmt.Sprintf("search:%d", id))
	if h.searchErr != nil {
		return nil, h.searchErr
	}
	return h.items[id], nil
}

func (h *fakeHost) Cancel(_ context.Context, id int64) error {
	h.calls = append(h.calls, fmt.Sprintf("cancel:%d", id))
	return h.opErr
}

func (h *fakeHost) RemoveFile(_ context.Context, id int64) error {
	h.calls = append(h.calls, fmt.Sprintf("remove_file:%d", id))
	return h.opErr
}

func (h *fakeHost) Erase(_ context.Context, id int64) error {
	h.calls = append(h.calls, fmt.Sprintf("erase:%d", id))
	return h.opErr
}

func (h *fakeHost) enforcementCalls() []string {
	var out []string
	for _, c := range h.calls {
		if !strings.HasPrefix(c, "search:") {
			out = append(out, c)
		}
	}
	return out
}

type fakeNotifier struct {
	titles []string
	bodies []string
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, title, body string) error {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return n.err
}

type fakeAlerter struct {
	configured bool
	sent       []Alert
	err        error
}

func (a *fakeAlerter) Configured() bool { return a.configured }

func (a *fakeAlerter) Send(_ context.Context, alert Alert) error {
	if a.err != nil {
		return a.err
	}
	a.sent = append(a.sent, alert)
	return nil
}

type staticPolicy struct {
	doc *config.PolicyDocument
}

func (p staticPolicy) Current() *config.PolicyDocument { return p.doc }

func boolPtr(b bool) *bool { return &b }
