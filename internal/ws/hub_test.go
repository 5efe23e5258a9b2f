package ws

import (
	"context"
	"encoding/json"
	"testing"

	"groupchat-service/internal/observability"
)

func testClient(userID int64, username string, groupID int64, global bool) *Client {
	return newClient(nil, userID, username, groupID, global, ConnInfo{ConnID: "test"})
}

func TestHubAddAndRemoveGroupClient(t *testing.T) {
	hub := NewHub(nil)
	client := testClient(1, "alice", 2, false)

	hub.AddGroupClient(2, client)
	if hub.GroupClientCount(2) != 1 {
		t.Fatalf("expected group room to hold one client")
	}

	hub.RemoveGroupClient(2, client)
	if len(hub.groupRooms) != 0 {
		t.Fatalf("expected group room to be removed")
	}

	// removal twice is fine
	hub.RemoveGroupClient(2, client)
}

func TestHubBroadcastGroupReachesOnlyGroupMembers(t *testing.T) {
	hub := NewHub(nil)
	first := testClient(1, "alice", 7, false)
	second := testClient(2, "bob", 7, false)
	other := testClient(3, "carol", 8, false)

	hub.AddGroupClient(7, first)
	hub.AddGroupClient(7, second)
	hub.AddGroupClient(8, other)

	hub.BroadcastGroup(7, NewTypingEvent("alice"))

	for _, client := range []*Client{first, second} {
		select {
		case raw := <-client.send:
			var ev TypingEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.Fatalf("unmarshal broadcast: %v", err)
			}
			if ev.Type != "typing" || ev.User != "alice" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("expected client to receive broadcast")
		}
	}

	select {
	case <-other.send:
		t.Fatalf("client in another group received broadcast")
	default:
	}
}

func TestHubBroadcastDropsClosedClient(t *testing.T) {
	hub := NewHub(nil)
	open := testClient(1, "alice", 5, false)
	closed := testClient(2, "bob", 5, false)

	hub.AddGroupClient(5, open)
	hub.AddGroupClient(5, closed)
	closed.Close()

	hub.BroadcastGroup(5, NewTypingEvent("alice"))

	if hub.GroupClientCount(5) != 1 {
		t.Fatalf("expected closed client to be removed, count=%d", hub.GroupClientCount(5))
	}
	select {
	case <-open.send:
	default:
		t.Fatalf("expected open client to receive broadcast")
	}
}

func TestHubBroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	slow := testClient(1, "alice", 3, false)
	for i := 0; i < sendBufferSize; i++ {
		if !slow.enqueue([]byte("{}")) {
			t.Fatalf("expected buffer slot %d to be free", i)
		}
	}

	hub.AddGroupClient(3, slow)
	hub.BroadcastGroup(3, NewTypingEvent("alice"))

	if hub.GroupClientCount(3) != 0 {
		t.Fatalf("expected slow client to be dropped")
	}
	if slow.CloseReason() != "send buffer full" {
		t.Fatalf("expected drop reason to be recorded, got %q", slow.CloseReason())
	}
}

type recordingBusPublisher struct {
	events []observability.EventEnvelope
	keys   []string
}

func (r *recordingBusPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	r.keys = append(r.keys, routingKey)
	if env, ok := message.(observability.EventEnvelope); ok {
		r.events = append(r.events, env)
	}
	return nil
}

func TestHubDropPublishesReason(t *testing.T) {
	bus := &recordingBusPublisher{}
	observability.SetPublisher(bus)
	defer observability.SetPublisher(nil)

	hub := NewHub(nil)
	slow := testClient(1, "alice", 3, false)
	for i := 0; i < sendBufferSize; i++ {
		slow.enqueue([]byte("{}"))
	}

	hub.AddGroupClient(3, slow)
	hub.BroadcastGroup(3, NewTypingEvent("alice"))

	var drop *observability.EventEnvelope
	for i := range bus.events {
		if bus.events[i].EventName == "ws_drop" {
			drop = &bus.events[i]
		}
	}
	if drop == nil {
		t.Fatalf("expected a ws_drop event on the bus, got %v", bus.keys)
	}

	payload, ok := drop.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload shape: %T", drop.Payload)
	}
	wsFields, ok := payload["ws"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing ws payload section")
	}
	if reason := wsFields["reason"]; reason != "send buffer full" {
		t.Fatalf("expected drop reason on the bus, got %v", reason)
	}
}

func TestHubBroadcastRoom(t *testing.T) {
	hub := NewHub(nil)
	client := testClient(4, "dora", 0, true)

	hub.AddRoomClient(client)
	hub.BroadcastRoom(NewOnlineCountEvent(3))

	select {
	case raw := <-client.send:
		var ev OnlineCountEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if ev.Type != "online_count" || ev.Count != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected room client to receive broadcast")
	}

	hub.RemoveRoomClient(client)
	if len(hub.globalRoom) != 0 {
		t.Fatalf("expected global room to be empty")
	}
}
