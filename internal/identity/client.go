package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/susu3304/tablesplit/internal/tablesession"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrNotFound = errors.New("identity: user not found")

type Config struct {
	ServiceURL   string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// User is the profile document served by the identity service.
type User struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	AvatarURL  *string `json:"avatar_url"`
}

// DisplayName prefers the global name over the account name.
func (u *User) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

// Client fetches user profiles with a client-credentials token.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = cc.Client(ctx)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) User(ctx context.Context, userID string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tablesplit/1.0 (+https://github.com/susu3304/tablesplit)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Cache stores profiles locally, typically the users table.
type Cache interface {
	LookupUser(ctx context.Context, userID string) (tablesession.Profile, error)
	UpsertUser(ctx context.Context, userID string, p tablesession.Profile) error
}

// Directory resolves profiles from the identity service when configured and
// falls back to the local cache. It implements tablesession.Directory.
type Directory struct {
	remote *Client
	cache  Cache
}

// NewDirectory accepts a nil remote, in which case only the cache is used.
func NewDirectory(remote *Client, cache Cache) *Directory {
	return &Directory{remote: remote, cache: cache}
}

func (d *Directory) LookupUser(ctx context.Context, userID string) (tablesession.Profile, error) {
	if d.remote != nil {
		user, err := d.remote.User(ctx, userID)
		if err == nil {
			p := tablesession.Profile{DisplayName: user.DisplayName()}
			if user.AvatarURL != nil {
				p.AvatarURL = *user.AvatarURL
			}
			if d.cache != nil {
				if err := d.cache.UpsertUser(ctx, userID, p); err != nil {
					log.Printf("identity: cache profile %s: %v", userID, err)
				}
			}
			return p, nil
		}
		log.Printf("identity: remote lookup %s: %v", userID, err)
	}
	if d.cache == nil {
		return tablesession.Profile{}, ErrNotFound
	}
	return d.cache.LookupUser(ctx, userID)
}
