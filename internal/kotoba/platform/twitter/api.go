package twitter

import (
	"context"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform"
)

// DefaultAPIBase is the public API endpoint.
const DefaultAPIBase = "https://api.twitter.com"

// APIPoster posts through POST /2/tweets signed with OAuth 1.0a.
type APIPoster struct {
	endpoint string
	http     *http.Client
}

// NewAPIPoster requires all four OAuth 1.0a credentials.
func NewAPIPoster(cfg config.Twitter) (*APIPoster, error) {
	if cfg.APIKey == "" || cfg.APIKeySecret == "" || cfg.AccessToken == "" || cfg.AccessTokenSecret == "" {
		return nil, errkind.E(errkind.Config, "twitter.api", &errkind.AuthError{Service: "twitter"})
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}

	oc := oauth1.NewConfig(cfg.APIKey, cfg.APIKeySecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, platform.NewHTTPClient())
	return &APIPoster{
		endpoint: base + "/2/tweets",
		http:     oc.Client(ctx, token),
	}, nil
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (p *APIPoster) PostTweet(ctx context.Context, text string) error {
	var out tweetResponse
	return platform.PostJSON(ctx, p.http, "twitter", p.endpoint, nil, tweetRequest{Text: text}, &out)
}
