package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters a BlockChain reports to Prometheus, covering
// the engine's own lifecycle events.
type Metrics struct {
	BlocksAppended  prometheus.Counter
	ChainsForked    prometheus.Counter
	ChainsSwapped   prometheus.Counter
	TxsStaged       prometheus.Counter
	TxsUnstaged     prometheus.Counter
	ActionsRendered prometheus.Counter
	ActionsUnrendered prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set on reg. Pass
// prometheus.NewRegistry() (or nil for the default registerer) per
// BlockChain instance in tests to avoid duplicate-registration panics
// across chains sharing a process.
func NewMetrics(reg prometheus.Registerer, chainLabel string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(prometheus.Labels{"chain": chainLabel}, reg)
	m := &Metrics{
		BlocksAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_blocks_appended_total",
			Help: "Total number of blocks successfully appended to the chain.",
		}),
		ChainsForked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_chains_forked_total",
			Help: "Total number of sibling chains created via Fork.",
		}),
		ChainsSwapped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_chains_swapped_total",
			Help: "Total number of canonical chain identity swaps.",
		}),
		TxsStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_transactions_staged_total",
			Help: "Total number of transactions staged for inclusion.",
		}),
		TxsUnstaged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_transactions_unstaged_total",
			Help: "Total number of transactions removed from staging.",
		}),
		ActionsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_actions_rendered_total",
			Help: "Total number of action render callbacks fired.",
		}),
		ActionsUnrendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaincore_actions_unrendered_total",
			Help: "Total number of action unrender callbacks fired.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.BlocksAppended, m.ChainsForked, m.ChainsSwapped,
		m.TxsStaged, m.TxsUnstaged, m.ActionsRendered, m.ActionsUnrendered,
	} {
		factory.MustRegister(c)
	}
	return m
}
