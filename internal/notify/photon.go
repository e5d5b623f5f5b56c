package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// PhotonConfig configures the Photon attribution API.
type PhotonConfig struct {
	BaseURL              string
	APIKey               string
	RewardedCampaignID   string
	UnrewardedCampaignID string
}

// PhotonSender reports commit, reveal and win events to Photon for XP and
// token attribution. Other event types are ignored.
type PhotonSender struct {
	cfg    PhotonConfig
	client *http.Client
	now    func() time.Time
}

// NewPhotonSender creates a PhotonSender.
func NewPhotonSender(cfg PhotonConfig) *PhotonSender {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PhotonSender{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
		now:    time.Now,
	}
}

type photonEvent struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	ClientUserID string         `json:"client_user_id"`
	CampaignID   string         `json:"campaign_id"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    string         `json:"timestamp"`
}

// eventPrefix is the event_id prefix per event type.
var eventPrefix = map[domain.EventType]string{
	domain.EventCommit: "commit",
	domain.EventReveal: "reveal",
	domain.EventWin:    "win",
}

// Publish posts ev to the campaign attribution endpoint. Commits and wins go
// to the rewarded campaign, reveals to the unrewarded one.
func (p *PhotonSender) Publish(ctx context.Context, ev domain.Event) error {
	prefix, ok := eventPrefix[ev.Type]
	if !ok {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = p.now()
	}
	campaign := p.cfg.RewardedCampaignID
	if ev.Type == domain.EventReveal {
		campaign = p.cfg.UnrewardedCampaignID
	}

	meta := make(map[string]any, len(ev.Metadata)+2)
	meta["marketId"] = ev.MarketID
	if ev.Type == domain.EventWin {
		meta["winAmount"] = 0
	}
	for k, v := range ev.Metadata {
		meta[k] = v
	}

	body := photonEvent{
		EventID:      fmt.Sprintf("%s-%d-%s-%d", prefix, ev.MarketID, ev.Address, at.UnixMilli()),
		EventType:    string(ev.Type),
		ClientUserID: ev.Address,
		CampaignID:   campaign,
		Metadata:     meta,
		Timestamp:    at.UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, p.client, "photon", p.cfg.BaseURL+"/attribution/events/campaign", body,
		map[string]string{"X-API-Key": p.cfg.APIKey})
}

// Name implements EventSink.
func (p *PhotonSender) Name() string {
	return "photon"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
