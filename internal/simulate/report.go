package simulate

import (
	"log"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/pkg/metrics"
)

const stageLatencyMetric = "stance_pipeline_stage_latency_milliseconds"

// reportRun prints per-participant score aggregates and average pipeline
// stage latencies.
func reportRun(config *Config, byKey map[string][]model.Snapshot) {
	log.Println("📊 Simulation report")

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		snaps := byKey[key]
		balances := make([]float64, 0, len(snaps))
		symmetries := make([]float64, 0, len(snaps))
		efficiencies := make([]float64, 0, len(snaps))
		detected := 0
		for _, snap := range snaps {
			balances = append(balances, float64(snap.Metrics.BalanceScore))
			symmetries = append(symmetries, float64(snap.Metrics.SymmetryScore))
			efficiencies = append(efficiencies, float64(snap.Metrics.PosturalEfficiency))
			if snap.Detected {
				detected++
			}
		}
		log.Printf("   %s: %d snapshots, %d detected, balance %.1f, symmetry %.1f, efficiency %.1f",
			key, len(snaps), detected,
			stat.Mean(balances, nil), stat.Mean(symmetries, nil), stat.Mean(efficiencies, nil))

		if config.Verbose && len(balances) > 0 {
			log.Printf("      balance min %.0f max %.0f, symmetry min %.0f max %.0f",
				floats.Min(balances), floats.Max(balances),
				floats.Min(symmetries), floats.Max(symmetries))
		}
	}

	displayStageLatencies()
}

// displayStageLatencies scrapes the mean per-stage latency out of the
// metrics registry. The sampling loop is the only writer of these
// histograms, so after the session ends the numbers are settled.
func displayStageLatencies() {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		log.Printf("⚠️  failed to gather metrics: %v", err)
		return
	}

	for _, mf := range families {
		if mf.GetName() != stageLatencyMetric {
			continue
		}
		for _, m := range mf.GetMetric() {
			hist := m.GetHistogram()
			if hist.GetSampleCount() == 0 {
				continue
			}
			stage := ""
			for _, l := range m.GetLabel() {
				if l.GetName() == "stage" {
					stage = l.GetValue()
				}
			}
			avg := hist.GetSampleSum() / float64(hist.GetSampleCount())
			log.Printf("   stage %s: %d samples, %.2fms avg", stage, hist.GetSampleCount(), avg)
		}
	}
}
