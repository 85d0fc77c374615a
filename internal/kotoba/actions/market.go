package actions

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bdobrica/Kotoba/internal/kotoba/message"
)

// coinIDs maps ticker symbols to CoinGecko ids.
var coinIDs = map[string]string{
	"btc":  "bitcoin",
	"eth":  "ethereum",
	"sol":  "solana",
	"doge": "dogecoin",
	"xrp":  "ripple",
	"ada":  "cardano",
	"avax": "avalanche-2",
	"link": "chainlink",
}

// marketIntent are the words that turn an asset mention into a price query.
var marketIntent = map[string]bool{
	"doing":       true,
	"price":       true,
	"prices":      true,
	"analysis":    true,
	"analyze":     true,
	"market":      true,
	"markets":     true,
	"trading":     true,
	"worth":       true,
	"performance": true,
	"update":      true,
}

const marketContext = "You are a concise crypto market analyst. The user message " +
	"holds live spot data. Comment on momentum, relative strength and anything " +
	"notable in the 24h volume, in at most three sentences. No hype, no hashtags."

var wordSplit = regexp.MustCompile(`[a-z0-9]+`)

// words splits text into lower-case alphanumeric tokens.
func words(text string) []string {
	return wordSplit.FindAllString(strings.ToLower(text), -1)
}

type asset struct {
	symbol string
	id     string
}

// FinancialAnalysis answers price questions about tracked assets with live
// spot data and asks the model for a short read on it.
type FinancialAnalysis struct {
	baseURL string
	assets  []asset
	client  *http.Client
}

// NewFinancialAnalysis tracks the given ticker symbols against a
// CoinGecko-compatible API at baseURL.
func NewFinancialAnalysis(baseURL string, symbols []string, client *http.Client) *FinancialAnalysis {
	f := &FinancialAnalysis{baseURL: strings.TrimRight(baseURL, "/"), client: client}
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		id, ok := coinIDs[s]
		if !ok {
			id = s
		}
		f.assets = append(f.assets, asset{symbol: s, id: id})
	}
	return f
}

func (f *FinancialAnalysis) Name() string { return "financial_analysis" }

func (f *FinancialAnalysis) ShouldExecute(msg *message.Message) bool {
	mentioned, intent := f.scan(msg.Text)
	return len(mentioned) > 0 && intent
}

// scan returns the tracked assets mentioned in text, in tracking order, and
// whether text carries a market intent word.
func (f *FinancialAnalysis) scan(text string) ([]asset, bool) {
	tokens := make(map[string]bool)
	intent := false
	for _, w := range words(text) {
		tokens[w] = true
		if marketIntent[w] {
			intent = true
		}
	}
	var out []asset
	for _, a := range f.assets {
		if tokens[a.symbol] || tokens[a.id] {
			out = append(out, a)
		}
	}
	return out, intent
}

type coinQuote struct {
	USD       float64 `json:"usd"`
	MarketCap float64 `json:"usd_market_cap"`
	Volume    float64 `json:"usd_24h_vol"`
	Change    float64 `json:"usd_24h_change"`
}

func (f *FinancialAnalysis) Execute(ctx context.Context, msg *message.Message) (*Result, error) {
	mentioned, _ := f.scan(msg.Text)
	if len(mentioned) == 0 {
		mentioned = f.assets
	}
	ids := make([]string, len(mentioned))
	for i, a := range mentioned {
		ids[i] = a.id
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")

	var quotes map[string]coinQuote
	if err := getJSON(ctx, f.client, "coingecko", f.baseURL+"/simple/price?"+q.Encode(), &quotes); err != nil {
		return nil, err
	}

	var lines []string
	for _, a := range mentioned {
		quote, ok := quotes[a.id]
		if !ok {
			continue
		}
		lines = append(lines, formatQuote(a.symbol, quote))
	}
	if len(lines) == 0 {
		return &Result{
			Text:              "No market data available right now.",
			ShouldSendMessage: true,
		}, nil
	}
	return &Result{
		Text:              "📈 Market update\n" + strings.Join(lines, "\n"),
		ShouldSendMessage: true,
		Context:           marketContext,
	}, nil
}

func formatQuote(symbol string, q coinQuote) string {
	arrow := "▲"
	if q.Change < 0 {
		arrow = "▼"
	}
	return fmt.Sprintf("%s $%s (%s%.2f%% 24h) · mcap $%s · vol $%s",
		strings.ToUpper(symbol),
		humanize.CommafWithDigits(q.USD, 2),
		arrow, math.Abs(q.Change),
		compact(q.MarketCap),
		compact(q.Volume),
	)
}

// compact renders large dollar figures as 1.3T, 28.1B, 950.0M.
func compact(v float64) string {
	if v < 1000 {
		return humanize.CommafWithDigits(v, 0)
	}
	value, prefix := humanize.ComputeSI(v)
	if prefix == "G" {
		prefix = "B"
	}
	return fmt.Sprintf("%.1f%s", value, prefix)
}
