// Package warcraftlogs reads a character's historical boss kills from the WarcraftLogs v1 API.
package warcraftlogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/simbot/internal/adapters/apiclient"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
)

// DefaultBaseURL is the v1 API root.
const DefaultBaseURL = "https://www.warcraftlogs.com:443/v1"

// talentColumnOffset converts the roster service's 0-indexed talent columns
// to the simulator's 1-indexed talent digits.
const talentColumnOffset = 1

// classIDs maps log-service class names (lowercase, no spaces) to roster-service class ids.
var classIDs = map[string]string{
	"warrior":     "1",
	"paladin":     "2",
	"hunter":      "3",
	"rogue":       "4",
	"priest":      "5",
	"deathknight": "6",
	"shaman":      "7",
	"mage":        "8",
	"warlock":     "9",
	"monk":        "10",
	"druid":       "11",
	"demonhunter": "12",
}

// Client is a WarcraftLogs collaborator.
type Client struct {
	baseURL string
	apiKey  string
	api     *apiclient.Client
	log     logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	talents model.TalentData
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIClient sets the quota-tracking HTTP client.
func WithAPIClient(api *apiclient.Client) Option {
	return func(c *Client) {
		if api != nil {
			c.api = api
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces the clock the lookback window is measured against.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a WarcraftLogs client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		log:     logger.GetOrNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.api == nil {
		c.api = apiclient.NewClient("warcraftlogs",
			apiclient.WithLogger(c.log),
			apiclient.WithQuota(apiclient.Quota{PerSecond: 5, PerHour: 3600}),
		)
	}
	return c
}

// HasTalentData reports whether a talent table is set.
func (c *Client) HasTalentData() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.talents) > 0
}

// SetTalentData sets the talent table used to convert logged talents.
func (c *Client) SetTalentData(data model.TalentData) {
	c.mu.Lock()
	c.talents = data
	c.mu.Unlock()
}

type wclTalent struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type wclKill struct {
	StartTime         int64       `json:"start_time"`
	PerSecondAmount   float64     `json:"persecondamount"`
	ItemLevel         float64     `json:"ilvl"`
	HistoricalPercent float64     `json:"historical_percent"`
	Talents           []wclTalent `json:"talents"`
}

type wclSpec struct {
	Class string    `json:"class"`
	Spec  string    `json:"spec"`
	Data  []wclKill `json:"data"`
}

type wclBoss struct {
	Name       string    `json:"name"`
	Difficulty int       `json:"difficulty"`
	Specs      []wclSpec `json:"specs"`
}

// GetAllParses returns the player's kills per boss at difficulty within the
// last weeks. Bosses fought at the difficulty but without a kill in the window
// map to an empty slice.
func (c *Client) GetAllParses(ctx context.Context, player, realmSlug string, region model.Region, metric string, difficulty model.Difficulty, weeks int) (map[string][]model.BossEncounterRecord, error) {
	if weeks <= 0 {
		return nil, fmt.Errorf("%w: weeks must be positive, got %d", ErrInvalidArgument, weeks)
	}
	if player == "" || realmSlug == "" || region == "" || metric == "" || difficulty.Code() == 0 {
		return nil, fmt.Errorf("%w: name %q, server %q, region %q, metric %q, difficulty %q",
			ErrInvalidArgument, player, realmSlug, region, metric, difficulty)
	}

	endpoint := fmt.Sprintf("%s/parses/character/%s/%s/%s", c.baseURL,
		url.PathEscape(player), url.PathEscape(realmSlug), url.PathEscape(string(region)))
	resp, err := c.api.Get(ctx, endpoint, url.Values{
		"metric":  {metric},
		"api_key": {c.apiKey},
	})
	if err != nil {
		var ue *apiclient.UpstreamError
		if errors.As(err, &ue) {
			return nil, &ServerError{StatusCode: ue.StatusCode, Err: err}
		}
		return nil, &ServerError{Err: err}
	}

	if isEmptyBody(resp.Body) {
		c.log.Warn(ctx, "empty log response",
			logger.String("player", player), logger.String("server", realmSlug), logger.String("difficulty", string(difficulty)))
		return nil, ErrNoLogs
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error(ctx, "unable to find parses",
			logger.String("player", player), logger.Int("status", resp.StatusCode))
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}

	var raw []wclBoss
	if err := resp.DecodeJSON(&raw); err != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Err: err}
	}
	if len(raw) == 0 {
		return nil, ErrNoLogs
	}

	kills, err := c.processParses(ctx, player, difficulty.Code(), weeks, raw)
	if err != nil {
		return nil, err
	}
	for _, records := range kills {
		if len(records) > 0 {
			return kills, nil
		}
	}

	c.log.Info(ctx, "player has no boss kills in window",
		logger.String("player", player), logger.Int("weeks", weeks))
	return nil, ErrNoRecentKills
}

// processParses filters by difficulty and lookback window and drops the
// log service's "Melee"/"Ranged" aggregates, which duplicate real spec entries.
func (c *Client) processParses(ctx context.Context, player string, difficulty, weeks int, raw []wclBoss) (map[string][]model.BossEncounterRecord, error) {
	cutoff := c.now().Add(-time.Duration(weeks) * 7 * 24 * time.Hour)
	out := make(map[string][]model.BossEncounterRecord)

	for _, boss := range raw {
		if boss.Difficulty != difficulty {
			continue
		}
		records := out[boss.Name]
		for _, spec := range boss.Specs {
			if spec.Spec == "Melee" || spec.Spec == "Ranged" {
				continue
			}
			for _, k := range spec.Data {
				ts := time.UnixMilli(k.StartTime)
				if ts.Before(cutoff) {
					continue
				}
				talents, err := c.convertTalents(spec.Class, spec.Spec, k.Talents)
				if err != nil {
					if errors.Is(err, ErrNoTalentData) {
						return nil, err
					}
					c.log.Warn(ctx, "talent conversion failed",
						logger.String("player", player), logger.String("class", spec.Class), logger.Error(err))
				}
				records = append(records, model.BossEncounterRecord{
					Boss:              boss.Name,
					ItemLevel:         k.ItemLevel,
					DPS:               k.PerSecondAmount,
					HistoricalPercent: k.HistoricalPercent,
					Talents:           talents,
					Spec:              spec.Spec,
					Timestamp:         ts.UTC(),
				})
			}
		}
		if records == nil {
			records = []model.BossEncounterRecord{}
		}
		out[boss.Name] = records
	}
	return out, nil
}

// convertTalents maps logged talent spell ids to simulator column digits, one per tier.
// Tiers without a match are skipped.
func (c *Client) convertTalents(class, spec string, logged []wclTalent) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.talents) == 0 {
		return nil, ErrNoTalentData
	}
	id, ok := classIDs[strings.ToLower(strings.ReplaceAll(class, " ", ""))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown class %q", ErrInvalidArgument, class)
	}
	entry, ok := c.talents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no talents for class %q", ErrInvalidArgument, class)
	}

	wantSpec := strings.ToLower(spec)
	out := make([]int, 0, len(logged))
	for tierIdx, talent := range logged {
		if tierIdx >= len(entry.Talents) {
			break
		}
		if col, ok := findColumn(entry.Talents[tierIdx], wantSpec, talent.ID); ok {
			out = append(out, col+talentColumnOffset)
		}
	}
	return out, nil
}

func findColumn(tier [][]model.TalentEntry, spec string, spellID int) (int, bool) {
	for _, column := range tier {
		for _, variant := range column {
			if variant.Spell.ID != spellID {
				continue
			}
			if variant.Spec != nil && strings.ToLower(strings.ReplaceAll(variant.Spec.Name, " ", "")) != spec {
				continue
			}
			return variant.Column, true
		}
	}
	return 0, false
}

func isEmptyBody(b []byte) bool {
	switch string(bytes.TrimSpace(b)) {
	case "", "[]", "{}", "null":
		return true
	default:
		return false
	}
}
