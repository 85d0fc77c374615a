package twitter

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/redact"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform"
)

const (
	// CreateTweetURL is the web client's GraphQL mutation.
	CreateTweetURL = "https://twitter.com/i/api/graphql/a1p9RWpkYKBjWv_I3WzS-A/CreateTweet"

	// webBearerToken is the public token embedded in the web client.
	webBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs=1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

type cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
}

// BrowserPoster replays the web client's CreateTweet call with a session
// exported from a logged-in browser.
type BrowserPoster struct {
	cookies   []cookie
	csrfToken string
	authToken string
	guestID   string

	endpoint string
	http     *http.Client
	// delay returns the pause taken before each post.
	delay func() time.Duration
}

// NewBrowserPoster parses cookiesJSON, a JSON array of {name, value, domain}
// objects. The array may itself be JSON-encoded as a string. The ct0 and
// auth_token cookies are required.
func NewBrowserPoster(cookiesJSON string) (*BrowserPoster, error) {
	cookies, err := parseCookies(cookiesJSON)
	if err != nil {
		return nil, err
	}
	p := &BrowserPoster{
		cookies:  cookies,
		endpoint: CreateTweetURL,
		http:     platform.NewHTTPClient(),
		delay:    humanDelay,
	}
	for _, c := range cookies {
		switch c.Name {
		case "ct0":
			p.csrfToken = c.Value
		case "auth_token":
			p.authToken = c.Value
		case "guest_id":
			p.guestID = strings.Replace(c.Value, "v1%3A", "", 1)
		}
	}
	if p.csrfToken == "" || p.authToken == "" {
		return nil, errkind.Errorf(errkind.Config, "twitter.browser", "cookies must include ct0 and auth_token")
	}
	return p, nil
}

func parseCookies(raw string) ([]cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errkind.Errorf(errkind.Config, "twitter.browser", "TWITTER_COOKIES is empty")
	}
	var encoded string
	if err := json.Unmarshal([]byte(raw), &encoded); err == nil {
		raw = encoded
	}
	var cookies []cookie
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return nil, errkind.Errorf(errkind.Config, "twitter.browser", "cookies are not a JSON array: %v", err)
	}
	for i := range cookies {
		if cookies[i].Domain == "" {
			cookies[i].Domain = ".twitter.com"
		}
	}
	return cookies, nil
}

// humanDelay returns a uniform pause between one and three seconds.
func humanDelay() time.Duration {
	return time.Second + rand.N(2*time.Second)
}

func (p *BrowserPoster) cookieHeader() string {
	parts := make([]string, len(p.cookies))
	for i, c := range p.cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

type createTweetRequest struct {
	Variables    createTweetVariables `json:"variables"`
	Features     map[string]bool      `json:"features"`
	FieldToggles struct{}             `json:"fieldToggles"`
}

type createTweetVariables struct {
	TweetText   string `json:"tweet_text"`
	DarkRequest bool   `json:"dark_request"`
	Media       struct {
		MediaEntities     []any `json:"media_entities"`
		PossiblySensitive bool  `json:"possibly_sensitive"`
	} `json:"media"`
	SemanticAnnotationIDs []string `json:"semantic_annotation_ids"`
}

// createTweetFeatures are the feature flags the web client sends with the
// mutation; the endpoint rejects requests that omit them.
var createTweetFeatures = map[string]bool{
	"interactive_text_enabled":                                                true,
	"longform_notetweets_inline_media_enabled":                                false,
	"responsive_web_text_conversations_enabled":                               false,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": false,
	"vibe_api_enabled":                                                        false,
	"rweb_lists_timeline_redesign_enabled":                                    true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"responsive_web_enhance_cards_enabled":                                    false,
	"subscriptions_verification_info_enabled":                                 true,
	"subscriptions_verification_info_reason_enabled":                          true,
	"subscriptions_verification_info_verified_since_enabled":                  true,
	"super_follow_badge_privacy_enabled":                                      false,
	"super_follow_exclusive_tweet_notifications_enabled":                      false,
	"super_follow_tweet_api_enabled":                                          false,
	"super_follow_user_api_enabled":                                           false,
	"android_graphql_skip_api_media_color_palette":                            false,
	"creator_subscriptions_subscription_count_enabled":                        false,
	"blue_business_profile_image_shape_enabled":                               false,
	"unified_cards_ad_metadata_container_dynamic_card_content_query_enabled":  false,
	"rweb_video_timestamps_enabled":                                           false,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               false,
	"responsive_web_twitter_article_tweet_consumption_enabled":                false,
}

func (p *BrowserPoster) PostTweet(ctx context.Context, text string) error {
	if d := p.delay(); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	body := createTweetRequest{Features: createTweetFeatures}
	body.Variables.TweetText = text
	body.Variables.Media.MediaEntities = []any{}
	body.Variables.SemanticAnnotationIDs = []string{}

	headers := map[string]string{
		"Authorization":             "Bearer " + webBearerToken,
		"Cookie":                    p.cookieHeader(),
		"User-Agent":                userAgent,
		"X-Csrf-Token":              p.csrfToken,
		"X-Twitter-Auth-Type":       "OAuth2Client",
		"X-Twitter-Active-User":     "yes",
		"X-Twitter-Client-Language": "en",
		"Origin":                    "https://twitter.com",
		"Referer":                   "https://twitter.com/home",
	}
	if p.guestID != "" {
		headers["X-Guest-Token"] = p.guestID
	}

	var out json.RawMessage
	err := platform.PostJSON(ctx, p.http, "twitter", p.endpoint, headers, body, &out)
	return redact.Error(err, p.csrfToken, p.authToken)
}
