package ws

import (
	"encoding/json"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// Channels are the bus channels relayed to clients. A new connection starts
// subscribed to all of them.
var Channels = []string{
	domain.ChannelMarketViews,
	domain.ChannelPrices,
	domain.ChannelPhases,
	domain.ChannelActions,
}

// Envelope is the text frame sent for every relayed message. ID is the
// stream entry id on replayed actions, so a client can resume after it.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Frame types that are not bus channels.
const (
	TypeHello       = "hello"
	TypeError       = "error"
	TypeReplayDone  = "replay_done"
	maxReplayFrames = 200
)

// request is what a client may send:
//
//	{"action":"subscribe","channels":["prices"]}
//	{"action":"unsubscribe","channels":["phases"]}
//	{"action":"watch","markets":[3,7]}      // empty list watches every market
//	{"action":"replay","since":"0","limit":50}
type request struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
	Markets  []uint64 `json:"markets,omitempty"`
	Since    string   `json:"since,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

func knownChannel(ch string) bool {
	return slices.Contains(Channels, ch)
}

// marketOf extracts the market a payload is about, or 0 for payloads that
// are not market scoped (prices). Market views nest the id under "market".
func marketOf(channel string, payload []byte) uint64 {
	switch channel {
	case domain.ChannelMarketViews:
		return gjson.GetBytes(payload, "market.id").Uint()
	case domain.ChannelPhases, domain.ChannelActions:
		return gjson.GetBytes(payload, "marketId").Uint()
	}
	return 0
}

// frame wraps payload in an Envelope. Payloads that are not JSON are sent as
// a JSON string.
func frame(typ, id string, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(Envelope{Type: typ, ID: id, Payload: payload})
}

func errorFrame(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	out, _ := frame(TypeError, "", b)
	return out
}
