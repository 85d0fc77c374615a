package actions

import (
	"net/http"
	"time"

	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/memory"
)

// defaultHTTPTimeout bounds every upstream data request made by an action.
const defaultHTTPTimeout = 15 * time.Second

// Deps are the shared collaborators actions may use.
type Deps struct {
	Memory     *memory.Store
	HTTPClient *http.Client
}

// Load builds the built-in registry for cfg. The order is fixed: remember,
// etf_flows, financial_analysis.
func Load(cfg *config.Snapshot, deps Deps) *Registry {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	r := NewRegistry()
	if deps.Memory != nil {
		r.Register(NewRemember(deps.Memory, cfg.Memory.LongTermTTL))
	}
	r.Register(NewETFFlows(cfg.Market.ETFFlows, client))
	r.Register(NewFinancialAnalysis(cfg.Market.APIBase, cfg.Market.Assets, client))
	return r
}

