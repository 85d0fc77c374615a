// Package twitter posts tweets either through the v2 API with OAuth 1.0a
// user credentials or through the web client's GraphQL endpoint with a
// logged-in browser session.
package twitter

import (
	"context"
	"log/slog"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
)

// Poster publishes a tweet.
type Poster interface {
	PostTweet(ctx context.Context, text string) error
}

// NewPoster selects the implementation from cfg. The browser session wins
// when both are enabled.
func NewPoster(cfg config.Twitter) (Poster, error) {
	if cfg.BrowserEnabled {
		slog.Info("twitter: using browser session poster")
		return NewBrowserPoster(cfg.Cookies)
	}
	if cfg.Enabled {
		slog.Info("twitter: using API poster")
		return NewAPIPoster(cfg)
	}
	return nil, errkind.Errorf(errkind.Config, "twitter.new",
		"no twitter poster enabled; set ENABLE_TWITTER or ENABLE_BROWSER_TWITTER")
}
