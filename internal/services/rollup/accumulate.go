package rollup

import (
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/models"
)

var hundred = decimal.NewFromInt(100)

// metric indexes into metricAcc arrays
const (
	metricBeta = iota
	metricVolatility
	metricDuration
	metricBetaToGold
	metricCount
)

// metricAcc holds Σ(value×metric) and Σ(value) per metric over matched positions only.
type metricAcc struct {
	num [metricCount]decimal.Decimal
	den [metricCount]decimal.Decimal
	n   [metricCount]int
}

func (m *metricAcc) add(value decimal.Decimal, stat *models.RiskStatRecord) {
	if stat == nil {
		return
	}
	for i, v := range [metricCount]*float64{stat.Beta, stat.Volatility, stat.Duration, stat.BetaToGold} {
		if v == nil {
			continue
		}
		m.num[i] = m.num[i].Add(value.Mul(decimal.NewFromFloat(*v)))
		m.den[i] = m.den[i].Add(value)
		m.n[i]++
	}
}

func (m *metricAcc) merge(o *metricAcc) {
	for i := 0; i < metricCount; i++ {
		m.num[i] = m.num[i].Add(o.num[i])
		m.den[i] = m.den[i].Add(o.den[i])
		m.n[i] += o.n[i]
	}
}

// result returns nil for a metric no matched position carried, never zero.
func (m *metricAcc) result() models.WeightedMetrics {
	get := func(i int) *float64 {
		if m.n[i] == 0 || m.den[i].IsZero() {
			return nil
		}
		f, _ := m.num[i].DivRound(m.den[i], 12).Float64()
		return &f
	}
	return models.WeightedMetrics{
		Beta:       get(metricBeta),
		Volatility: get(metricVolatility),
		Duration:   get(metricDuration),
		BetaToGold: get(metricBetaToGold),
	}
}

type bucketAcc struct {
	value   decimal.Decimal
	metrics metricAcc
}

type subAcc struct {
	bucketAcc
	bands map[string]*bucketAcc
}

type classAcc struct {
	bucketAcc
	subs map[string]*subAcc
}

// nodeAcc accumulates every valued position under one node.
type nodeAcc struct {
	total    decimal.Decimal
	count    int
	liquid   decimal.Decimal
	illiquid decimal.Decimal
	metrics  metricAcc
	classes  map[string]*classAcc
}

func newNodeAcc() *nodeAcc {
	return &nodeAcc{classes: make(map[string]*classAcc)}
}

func (a *nodeAcc) add(v *valuedPosition) {
	a.total = a.total.Add(v.value)
	a.count++
	a.metrics.add(v.value, v.stat)

	if v.class.Liquidity == models.LiquidityLiquid {
		a.liquid = a.liquid.Add(v.value)
	} else {
		a.illiquid = a.illiquid.Add(v.value)
	}

	ca, ok := a.classes[v.class.AssetClass]
	if !ok {
		ca = &classAcc{subs: make(map[string]*subAcc)}
		a.classes[v.class.AssetClass] = ca
	}
	ca.value = ca.value.Add(v.value)
	ca.metrics.add(v.value, v.stat)

	if v.class.Subcategory == "" {
		return
	}
	sa, ok := ca.subs[v.class.Subcategory]
	if !ok {
		sa = &subAcc{bands: make(map[string]*bucketAcc)}
		ca.subs[v.class.Subcategory] = sa
	}
	sa.value = sa.value.Add(v.value)
	sa.metrics.add(v.value, v.stat)

	if v.class.Band == "" {
		return
	}
	ba, ok := sa.bands[v.class.Band]
	if !ok {
		ba = &bucketAcc{}
		sa.bands[v.class.Band] = ba
	}
	ba.value = ba.value.Add(v.value)
	ba.metrics.add(v.value, v.stat)
}

// pct returns part as a percentage of total, or nil when total is zero.
func pct(part, total decimal.Decimal) *float64 {
	if total.IsZero() {
		return nil
	}
	f, _ := part.Mul(hundred).DivRound(total, 10).Float64()
	return &f
}

// fill copies the accumulated figures into n. Every percentage is relative to
// the node total so allocations at any depth are directly comparable.
func (a *nodeAcc) fill(n *models.AggregatedNode) {
	n.TotalValue = a.total
	n.PositionCount = a.count
	n.NoData = a.count == 0 || a.total.IsZero()
	n.Metrics = a.metrics.result()
	n.Liquidity = models.LiquiditySplit{
		LiquidValue:   a.liquid,
		IlliquidValue: a.illiquid,
		LiquidPct:     pct(a.liquid, a.total),
		IlliquidPct:   pct(a.illiquid, a.total),
	}

	n.AssetClasses = make(map[string]*models.AssetClassAllocation, len(a.classes))
	for name, ca := range a.classes {
		alloc := &models.AssetClassAllocation{
			Value:    ca.value,
			TotalPct: pct(ca.value, a.total),
			Metrics:  ca.metrics.result(),
		}
		if len(ca.subs) > 0 {
			alloc.Subcategories = make(map[string]*models.SubcategoryAllocation, len(ca.subs))
		}
		for subName, sa := range ca.subs {
			sub := &models.SubcategoryAllocation{
				Value:   sa.value,
				Pct:     pct(sa.value, a.total),
				Metrics: sa.metrics.result(),
			}
			if len(sa.bands) > 0 {
				sub.Bands = make(map[string]*models.BandAllocation, len(sa.bands))
			}
			for bandName, ba := range sa.bands {
				sub.Bands[bandName] = &models.BandAllocation{
					Value:   ba.value,
					Pct:     pct(ba.value, a.total),
					Metrics: ba.metrics.result(),
				}
			}
			alloc.Subcategories[subName] = sub
		}
		n.AssetClasses[name] = alloc
	}
}
