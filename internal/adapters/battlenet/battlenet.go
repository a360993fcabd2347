// Package battlenet reads guild rosters and talent tables from the Battle.net community API.
package battlenet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/okian/simbot/internal/adapters/apiclient"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
)

// DefaultBaseURL is the US community API endpoint.
const DefaultBaseURL = "https://us.api.battle.net"

// Client is a Battle.net roster collaborator.
type Client struct {
	baseURL string
	apiKey  string
	api     *apiclient.Client
	log     logger.Logger
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

// New creates a Battle.net client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		log:     logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.api == nil {
		c.api = apiclient.NewClient("battlenet", apiclient.WithLogger(c.log))
	}
	return c
}

type guildResponse struct {
	Members *[]struct {
		Character struct {
			Name  string `json:"name"`
			Realm string `json:"realm"`
			Level int    `json:"level"`
			Spec  *struct {
				Name string `json:"name"`
				Role string `json:"role"`
			} `json:"spec"`
		} `json:"character"`
	} `json:"members"`
}

// GetGuildMembers returns members at exactly level grouped by role, plus every
// matching name in roster order. Members without a role are left out.
func (c *Client) GetGuildMembers(ctx context.Context, realm, guild, locale string, level int) (map[model.Role][]model.Player, []string, error) {
	endpoint := fmt.Sprintf("%s/wow/guild/%s/%s", c.baseURL, url.PathEscape(realm), url.PathEscape(guild))
	resp, err := c.api.Get(ctx, endpoint, url.Values{
		"fields": {"members"},
		"locale": {locale},
		"apikey": {c.apiKey},
	})
	if err != nil {
		return nil, nil, rosterError(realm, guild, err)
	}

	var raw guildResponse
	if err := resp.DecodeJSON(&raw); err != nil {
		return nil, nil, &RosterError{Kind: RosterUnavailable, Realm: realm, Guild: guild, Err: err}
	}
	if raw.Members == nil {
		c.log.Error(ctx, "unable to retrieve guild list",
			logger.String("guild", guild), logger.String("realm", realm), logger.String("locale", locale))
		return nil, nil, &RosterError{Kind: RosterUnavailable, Realm: realm, Guild: guild, Err: ErrNoMembers}
	}

	byRole := make(map[model.Role][]model.Player)
	var names []string
	for _, m := range *raw.Members {
		ch := m.Character
		if ch.Level != level || ch.Spec == nil {
			continue
		}
		role, err := model.ParseRole(ch.Spec.Role)
		if err != nil {
			c.log.Debug(ctx, "skipping member with unknown role",
				logger.String("player", ch.Name), logger.String("role", ch.Spec.Role))
			continue
		}
		byRole[role] = append(byRole[role], model.Player{
			Name:  ch.Name,
			Realm: ch.Realm,
			Level: ch.Level,
			Role:  role,
			Spec:  model.NormalizeSpec(ch.Spec.Name),
		})
		names = append(names, ch.Name)
	}

	c.log.Info(ctx, "guild roster fetched",
		logger.String("guild", guild),
		logger.Int("members", len(names)),
		logger.Int("dps", len(byRole[model.RoleDPS])),
	)
	return byRole, names, nil
}

// GetAllTalents fetches the talent table for every class.
func (c *Client) GetAllTalents(ctx context.Context, locale string) (model.TalentData, error) {
	resp, err := c.api.Get(ctx, c.baseURL+"/wow/data/talents", url.Values{
		"locale": {locale},
		"apikey": {c.apiKey},
	})
	if err != nil {
		return nil, fmt.Errorf("battlenet: talents: %w", err)
	}
	var data model.TalentData
	if err := resp.DecodeJSON(&data); err != nil {
		return nil, fmt.Errorf("battlenet: talents: %w", err)
	}
	return data, nil
}

func rosterError(realm, guild string, err error) *RosterError {
	kind := RosterUnavailable
	var ue *apiclient.UpstreamError
	if errors.As(err, &ue) {
		switch ue.Kind {
		case apiclient.KindRealmNotFound:
			kind = RosterRealmNotFound
		case apiclient.KindGuildNotFound:
			kind = RosterGuildNotFound
		}
	}
	return &RosterError{Kind: kind, Realm: realm, Guild: guild, Err: err}
}
