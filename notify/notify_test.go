package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"idlwatch/internal/dbopen"
	"idlwatch/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.NewStore(dbopen.OpenMemory(t))
	if err := s.Init(); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s
}

func seedTarget(t *testing.T, s *store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	err := s.InsertTarget(ctx, &store.Target{ID: id, Name: "amm", Address: "Prog111", Enabled: true})
	if err != nil {
		t.Fatalf("insert target: %v", err)
	}
	err = s.CreateSnapshot(ctx, &store.Snapshot{ID: id + "-snap", TargetID: id, ContentHash: "h", IDLJSON: "{}"})
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
}

func seedChange(t *testing.T, s *store.Store, id, targetID, severity string, at int64) {
	t.Helper()
	err := s.InsertChange(context.Background(), &store.ChangeRecord{
		ID:            id,
		TargetID:      targetID,
		NewSnapshotID: targetID + "-snap",
		ChangeType:    "instruction_added",
		Severity:      severity,
		Summary:       "added " + id,
		DetectedAt:    at,
	})
	if err != nil {
		t.Fatalf("insert change: %v", err)
	}
}

func seedSubscriber(t *testing.T, s *store.Store, id, targetID, webhookURL, secret string) {
	t.Helper()
	ctx := context.Background()
	err := s.InsertSubscriber(ctx, &store.Subscriber{
		ID: id, Name: id, WebhookURL: webhookURL, WebhookSecret: secret, Enabled: true,
	})
	if err != nil {
		t.Fatalf("insert subscriber: %v", err)
	}
	if err := s.Watch(ctx, id, targetID); err != nil {
		t.Fatalf("watch: %v", err)
	}
}

func testFanout(s *store.Store, senders map[string]Sender) *Fanout {
	return NewFanout(s, senders, Config{DeliveryDelay: time.Millisecond}, nil)
}

func TestSendPending_DeliversAndMarks(t *testing.T) {
	// WHAT: Pending changes for a target are aggregated into one signed
	// POST per subscriber and marked notified after success.
	s := testStore(t)
	seedTarget(t, s, "tgt-1")
	seedChange(t, s, "chg-1", "tgt-1", "critical", 1000)
	seedChange(t, s, "chg-2", "tgt-1", "low", 1001)

	var calls atomic.Int64
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	seedSubscriber(t, s, "sub-1", "tgt-1", srv.URL, "topsecret")

	sender := NewWebhookSender(srv.Client())
	sender.allowPrivate = true
	f := testFanout(s, map[string]Sender{store.ChannelWebhook: sender})

	res, err := f.SendPending(context.Background(), store.ChannelWebhook)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 aggregated delivery", calls.Load())
	}

	var msg Message
	if err := json.Unmarshal(gotBody, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Target != "Prog111" || len(msg.Changes) != 2 {
		t.Fatalf("message = %+v", msg)
	}
	// Critical bucket renders before low.
	if msg.Changes[0].Severity != "critical" {
		t.Errorf("first change severity = %s", msg.Changes[0].Severity)
	}
	if !VerifySignature(gotBody, gotSig, "topsecret") {
		t.Error("signature does not verify")
	}

	pending, _ := s.PendingChanges(context.Background(), store.ChannelWebhook)
	if len(pending) != 0 {
		t.Fatalf("still pending: %+v", pending)
	}
}

func TestSendPending_Idempotent(t *testing.T) {
	s := testStore(t)
	seedTarget(t, s, "tgt-1")
	seedChange(t, s, "chg-1", "tgt-1", "low", 1000)

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	seedSubscriber(t, s, "sub-1", "tgt-1", srv.URL, "")

	sender := NewWebhookSender(srv.Client())
	sender.allowPrivate = true
	f := testFanout(s, map[string]Sender{store.ChannelWebhook: sender})
	ctx := context.Background()

	if _, err := f.SendPending(ctx, store.ChannelWebhook); err != nil {
		t.Fatalf("first send: %v", err)
	}
	res, err := f.SendPending(ctx, store.ChannelWebhook)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if res.Sent != 0 || calls.Load() != 1 {
		t.Fatalf("second pass: result = %+v, calls = %d", res, calls.Load())
	}
}

func TestSendPending_ZeroSubscribersMarks(t *testing.T) {
	// WHAT: Changes for a target nobody watches are marked notified
	// without any delivery attempt.
	s := testStore(t)
	seedTarget(t, s, "tgt-1")
	seedChange(t, s, "chg-1", "tgt-1", "high", 1000)

	f := testFanout(s, map[string]Sender{store.ChannelWebhook: NewWebhookSender(nil)})
	res, err := f.SendPending(context.Background(), store.ChannelWebhook)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	pending, _ := s.PendingChanges(context.Background(), store.ChannelWebhook)
	if len(pending) != 0 {
		t.Fatalf("still pending: %+v", pending)
	}
}

func TestSendPending_PartialDelivery(t *testing.T) {
	// WHAT: One success out of two subscribers marks the group, counts
	// Sent=1 and records one DeliveryError for the failure.
	s := testStore(t)
	seedTarget(t, s, "tgt-1")
	seedChange(t, s, "chg-1", "tgt-1", "medium", 1000)

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	seedSubscriber(t, s, "sub-good", "tgt-1", good.URL, "")
	seedSubscriber(t, s, "sub-bad", "tgt-1", bad.URL, "")

	sender := NewWebhookSender(nil)
	sender.allowPrivate = true
	f := testFanout(s, map[string]Sender{store.ChannelWebhook: sender})

	res, err := f.SendPending(context.Background(), store.ChannelWebhook)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Errors[0].SubscriberID != "sub-bad" {
		t.Errorf("error subscriber = %s", res.Errors[0].SubscriberID)
	}

	pending, _ := s.PendingChanges(context.Background(), store.ChannelWebhook)
	if len(pending) != 0 {
		t.Fatal("partial success should still mark the group")
	}
}

func TestSendPending_AllFailuresStayPending(t *testing.T) {
	s := testStore(t)
	seedTarget(t, s, "tgt-1")
	seedChange(t, s, "chg-1", "tgt-1", "low", 1000)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	seedSubscriber(t, s, "sub-1", "tgt-1", bad.URL, "")

	sender := NewWebhookSender(nil)
	sender.allowPrivate = true
	f := testFanout(s, map[string]Sender{store.ChannelWebhook: sender})

	res, err := f.SendPending(context.Background(), store.ChannelWebhook)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sent != 0 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}

	pending, _ := s.PendingChanges(context.Background(), store.ChannelWebhook)
	if len(pending) != 1 {
		t.Fatal("failed-everywhere group must stay pending for the next pass")
	}
}

func TestWebhookSender_BlocksPrivateURLs(t *testing.T) {
	sender := NewWebhookSender(nil)
	sub := &store.Subscriber{ID: "sub-1", WebhookURL: "http://127.0.0.1:9/hook"}
	err := sender.Deliver(context.Background(), sub, &Message{})
	if err == nil || !strings.Contains(err.Error(), "private or loopback") {
		t.Fatalf("err = %v, want SSRF rejection", err)
	}
}

func TestTelegramSender(t *testing.T) {
	// WHAT: sendMessage goes to the right bot path; ok:false bodies are
	// failures even with a 200 status.
	var gotPath string
	var gotReq sendMessageRequest
	ok := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(sendMessageResponse{OK: ok, Description: "tested"})
	}))
	defer srv.Close()

	sender := NewTelegramSender("123:abc", srv.Client())
	sender.apiBase = srv.URL
	sub := &store.Subscriber{ID: "sub-1", TelegramChatID: "42"}
	msg := &Message{TargetName: "amm", Summary: "amm: 1 change (1 low)"}

	if err := sender.Deliver(context.Background(), sub, msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path = %s", gotPath)
	}
	if gotReq.ChatID != "42" || !strings.Contains(gotReq.Text, "amm") {
		t.Errorf("request = %+v", gotReq)
	}

	ok = false
	if err := sender.Deliver(context.Background(), sub, msg); err == nil {
		t.Fatal("ok:false must be a delivery failure")
	}
}

func TestBuildMessage_PreviewLimit(t *testing.T) {
	target := &store.Target{ID: "tgt-1", Name: "amm", Address: "Prog111"}
	var changes []*store.ChangeRecord
	for i := 0; i < 7; i++ {
		changes = append(changes, &store.ChangeRecord{
			ID:         "chg-" + string(rune('a'+i)),
			TargetID:   "tgt-1",
			ChangeType: "type_added",
			Severity:   "low",
			Summary:    "added something",
			DetectedAt: int64(1000 + i),
		})
	}
	changes = append(changes, &store.ChangeRecord{
		ID: "chg-crit", TargetID: "tgt-1", ChangeType: "instruction_removed",
		Severity: "critical", Summary: "removed swap", DetectedAt: 2000,
	})

	msg := buildMessage(target, changes, 5)
	// critical bucket (1) + low preview (5) + "+2 more" marker.
	if len(msg.Changes) != 7 {
		t.Fatalf("changes = %d: %+v", len(msg.Changes), msg.Changes)
	}
	if msg.Changes[0].Severity != "critical" {
		t.Errorf("first = %+v", msg.Changes[0])
	}
	last := msg.Changes[len(msg.Changes)-1]
	if last.Summary != "+2 more" {
		t.Errorf("last = %+v", last)
	}
	if !strings.Contains(msg.Summary, "8 changes") || !strings.Contains(msg.Summary, "1 critical") {
		t.Errorf("summary = %s", msg.Summary)
	}
}
