// Package membership talks to the Patreon-style membership provider: OAuth
// login, identity/membership lookup, webhook signature verification, and the
// account refresh that keeps patron status and entitled amount current.
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	authURL     = "https://www.patreon.com/oauth2/authorize"
	tokenURL    = "https://www.patreon.com/api/oauth2/token"
	identityURL = "https://www.patreon.com/api/oauth2/v2/identity"
)

var oauthScopes = []string{"identity", "identity[email]", "campaigns", "campaigns.members"}

// Membership is the provider's view of one member of the campaign.
type Membership struct {
	PatronStatus         *string
	EntitledAmountCents  int
	PledgeStart          *time.Time
	LifetimeSupportCents int
}

// Identity is the provider user behind an OAuth token, with their membership
// in the configured campaign (nil if they are not a member).
type Identity struct {
	ProviderID string
	Name       string
	Email      string
	Avatar     *string
	Membership *Membership
}

// Client wraps the provider's OAuth and identity APIs.
type Client struct {
	oauth      *oauth2.Config
	campaignID string
	httpClient *http.Client
	base       string
}

func NewClient(clientID, clientSecret, redirectURL, campaignID string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       oauthScopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		campaignID: campaignID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		base:       identityURL,
	}
}

// AuthCodeURL returns the provider login URL for the given CSRF state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return c.oauth.Exchange(ctx, code)
}

// Refresh obtains a fresh token set from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// identityResponse is the JSON:API shape of the identity endpoint with
// membership includes.
type identityResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			FullName string  `json:"full_name"`
			Email    string  `json:"email"`
			ImageURL *string `json:"image_url"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		Attributes struct {
			PatronStatus         *string    `json:"patron_status"`
			EntitledAmountCents  int        `json:"currently_entitled_amount_cents"`
			PledgeStart          *time.Time `json:"pledge_relationship_start"`
			LifetimeSupportCents int        `json:"lifetime_support_cents"`
		} `json:"attributes"`
		Relationships struct {
			Campaign struct {
				Data *struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"campaign"`
		} `json:"relationships"`
	} `json:"included"`
}

// Identity fetches the token holder's identity and their membership in the
// configured campaign. Membership is nil when they are not a member.
func (c *Client) Identity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("include", "memberships.campaign,memberships.currently_entitled_tiers")
	q.Set("fields[member]", "patron_status,currently_entitled_amount_cents,pledge_relationship_start,lifetime_support_cents")
	q.Set("fields[user]", "full_name,email,image_url")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity request: status %d: %s", resp.StatusCode, body)
	}

	var parsed identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	ident := &Identity{
		ProviderID: parsed.Data.ID,
		Name:       parsed.Data.Attributes.FullName,
		Email:      parsed.Data.Attributes.Email,
		Avatar:     parsed.Data.Attributes.ImageURL,
	}
	for _, inc := range parsed.Included {
		if inc.Type != "member" {
			continue
		}
		campaign := inc.Relationships.Campaign.Data
		if campaign == nil || campaign.ID != c.campaignID {
			continue
		}
		ident.Membership = &Membership{
			PatronStatus:         inc.Attributes.PatronStatus,
			EntitledAmountCents:  inc.Attributes.EntitledAmountCents,
			PledgeStart:          inc.Attributes.PledgeStart,
			LifetimeSupportCents: inc.Attributes.LifetimeSupportCents,
		}
		break
	}
	return ident, nil
}
