package realtime

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestPubSubSkipsOwnMessages(t *testing.T) {
	a := NewRedisPubSub(nil, zap.NewNop())
	b := NewRedisPubSub(nil, zap.NewNop())

	body, err := a.encode("detection", []byte(`{"class":"drowsy"}`))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var p redisPayload
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if a.shouldDeliver(p) {
		t.Error("an instance must not redeliver its own message to local monitors")
	}
	if !b.shouldDeliver(p) {
		t.Error("other instances must deliver the message")
	}
	if p.Event != "detection" || string(p.Data) != `{"class":"drowsy"}` {
		t.Errorf("payload mangled: %+v", p)
	}
}
