package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/realtime-chat/modules/chat"
)

func TestInboundFrame_Decode(t *testing.T) {
	raw := `{"event":"send-message","seq":7,"data":{"receiverId":"abc","content":"hi"}}`

	var frame InboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if frame.Event != OpSendMessage {
		t.Errorf("Event = %q, want %q", frame.Event, OpSendMessage)
	}
	if frame.Seq != 7 {
		t.Errorf("Seq = %d, want 7", frame.Seq)
	}

	var req chat.SendRequest
	if err := decodeInto(frame.Data, &req); err != nil {
		t.Fatalf("decodeInto error = %v", err)
	}
	if req.Content != "hi" {
		t.Errorf("Content = %q, want %q", req.Content, "hi")
	}
}

func TestDecodeInto_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty payload", ""},
		{"not json", "{{{"},
		{"wrong shape", `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req chat.SendRequest
			if err := decodeInto(json.RawMessage(tt.data), &req); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidateSend(t *testing.T) {
	valid := uuid.New().String()

	tests := []struct {
		name    string
		req     chat.SendRequest
		wantErr string
	}{
		{"text message", chat.SendRequest{ReceiverID: valid, Content: "hello"}, ""},
		{"image only", chat.SendRequest{ReceiverID: valid, Images: []string{"a.png"}}, ""},
		{"missing receiver", chat.SendRequest{Content: "hello"}, "receiverId is required"},
		{"bad receiver", chat.SendRequest{ReceiverID: "nope", Content: "hello"}, "valid UUID"},
		{"empty body", chat.SendRequest{ReceiverID: valid}, "content or images"},
		{"oversized body", chat.SendRequest{ReceiverID: valid, Content: strings.Repeat("x", maxContentLength+1)}, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSend(&tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateSend() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateSend() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOffer(t *testing.T) {
	tests := []struct {
		name    string
		req     chat.OfferRequest
		wantErr bool
	}{
		{"valid", chat.OfferRequest{CalleeID: uuid.New().String()}, false},
		{"missing callee", chat.OfferRequest{}, true},
		{"bad callee", chat.OfferRequest{CalleeID: "not-a-uuid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateOffer(&tt.req); (err != nil) != tt.wantErr {
				t.Errorf("validateOffer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateICE(t *testing.T) {
	candidate := json.RawMessage(`{"candidate":"a=foo"}`)

	if err := validateICE(&chat.ICERequest{CallID: "c1", Candidate: candidate}); err != nil {
		t.Errorf("validateICE() error = %v, want nil", err)
	}
	if err := validateICE(&chat.ICERequest{Candidate: candidate}); err == nil {
		t.Error("expected error for missing callId")
	}
	if err := validateICE(&chat.ICERequest{CallID: "c1"}); err == nil {
		t.Error("expected error for missing candidate")
	}
}

func TestValidateCheckOnline(t *testing.T) {
	tests := []struct {
		name    string
		req     CheckOnlineRequest
		wantErr bool
	}{
		{"single id", CheckOnlineRequest{UserIDs: []string{uuid.New().String()}}, false},
		{"batch", CheckOnlineRequest{UserIDs: []string{uuid.New().String(), uuid.New().String()}}, false},
		{"empty list", CheckOnlineRequest{}, true},
		{"empty id in list", CheckOnlineRequest{UserIDs: []string{uuid.New().String(), ""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateCheckOnline(&tt.req); (err != nil) != tt.wantErr {
				t.Errorf("validateCheckOnline() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !limiter.allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.allow() {
		t.Error("request over burst should be denied")
	}

	// Backdate the refill clock instead of sleeping.
	limiter.mu.Lock()
	limiter.lastRefill = limiter.lastRefill.Add(-2 * time.Second)
	limiter.mu.Unlock()

	if !limiter.allow() {
		t.Error("request after refill should be allowed")
	}
}

func TestAckData_Shape(t *testing.T) {
	ack := AckData{Seq: 3, Op: OpTyping, Success: true}
	raw, err := json.Marshal(ack)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	got := string(raw)
	if strings.Contains(got, "error") {
		t.Errorf("successful ack should omit error field, got %s", got)
	}
	if !strings.Contains(got, `"seq":3`) {
		t.Errorf("ack should echo seq, got %s", got)
	}
}
