package actions

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
)

const etfContext = "You are a concise market analyst covering spot crypto ETFs. " +
	"The user message holds the latest daily net flows in millions of USD. " +
	"Say what the flows suggest about institutional demand in at most three " +
	"sentences. No hype, no hashtags."

// etfReport is the payload expected from ETF_FLOWS_URL. Flows are in
// millions of USD; negative values are outflows.
type etfReport struct {
	Date  string    `json:"date"`
	Total float64   `json:"total"`
	Funds []etfFund `json:"funds"`
}

type etfFund struct {
	Ticker string  `json:"ticker"`
	Flow   float64 `json:"flow"`
}

// ETFFlows reports the latest daily spot ETF flows.
type ETFFlows struct {
	url    string
	client *http.Client
}

// NewETFFlows reads flow reports from url.
func NewETFFlows(url string, client *http.Client) *ETFFlows {
	return &ETFFlows{url: url, client: client}
}

func (e *ETFFlows) Name() string { return "etf_flows" }

func (e *ETFFlows) ShouldExecute(msg *message.Message) bool {
	etf, flow := false, false
	for _, w := range words(msg.Text) {
		switch {
		case w == "etf" || w == "etfs":
			etf = true
		case strings.Contains(w, "flow"):
			flow = true
		}
	}
	return etf && flow
}

func (e *ETFFlows) Execute(ctx context.Context, _ *message.Message) (*Result, error) {
	if e.url == "" {
		return nil, errkind.Errorf(errkind.Config, "actions.etf_flows", "ETF_FLOWS_URL is not set")
	}
	var report etfReport
	if err := getJSON(ctx, e.client, "etf_flows", e.url, &report); err != nil {
		return nil, err
	}

	funds := append([]etfFund(nil), report.Funds...)
	sort.SliceStable(funds, func(i, j int) bool {
		return abs(funds[i].Flow) > abs(funds[j].Flow)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "💰 Spot ETF flows %s: net %s", report.Date, signedMillions(report.Total))
	for _, f := range funds {
		if f.Flow == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s", f.Ticker, signedMillions(f.Flow))
	}
	return &Result{
		Text:              b.String(),
		ShouldSendMessage: true,
		Context:           etfContext,
	}, nil
}

func signedMillions(v float64) string {
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	return sign + "$" + humanize.CommafWithDigits(abs(v), 1) + "M"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
