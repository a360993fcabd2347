package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "simbot")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sim"),
				WithLatencyBuckets([]float64{1, 5, 10}),
				WithSimulationBuckets([]float64{1, 2}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.simulations.WithLabelValues("ok").Inc()

			Convey("Then collectors use the configured names and labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, mf := range families {
					names[mf.GetName()] = true
				}
				So(names["test_sim_simulations_total"], ShouldBeTrue)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))
			manager.simulations.WithLabelValues("ok").Inc()

			Convey("Then nothing lands on the supplied registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording API and simulation metrics", func() {
			before, _ := Value("simbot_api_quota_exceeded_total", map[string]string{"service": "battlenet", "window": "second"})
			RecordQuotaExceeded("battlenet", "second")
			RecordAPICall("battlenet", "ok", 12)
			RecordSimulation("ok", 1.5)

			Convey("Then the counters move", func() {
				after, err := Value("simbot_api_quota_exceeded_total", map[string]string{"service": "battlenet", "window": "second"})
				So(err, ShouldBeNil)
				So(after-before, ShouldEqual, 1.0)
			})
		})

		Convey("When tracking orchestrator state transitions", func() {
			UpdateOrchestratorState("", "idle_test")
			UpdateOrchestratorState("idle_test", "done_test")

			Convey("Then only the latest state is set", func() {
				idle, err := Value("simbot_orchestrator_state", map[string]string{"state": "idle_test"})
				So(err, ShouldBeNil)
				So(idle, ShouldEqual, 0.0)
				done, err := Value("simbot_orchestrator_state", map[string]string{"state": "done_test"})
				So(err, ShouldBeNil)
				So(done, ShouldEqual, 1.0)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordCacheLookup("hit")
				UpdateCacheSize(3)
				RecordUnitQueued("local")
				AddUnitsInFlight("local", 1)
				AddUnitsInFlight("local", -1)
				UpdateQueueDepth(0)
				RecordProgressEvent("run_started", "published")
				RecordPlayerProcessed("scored")
				AddRunsActive(1)
				AddRunsActive(-1)
				RecordHTTPRequest("/runs", "POST", "202")
				RecordHTTPRequestDuration("/runs", "POST", "202", 3)
				RecordErrorByComponent("simc", "timeout")
			}, ShouldNotPanic)
		})

		Convey("When asking for a metric that does not exist", func() {
			_, err := Value("simbot_nope", nil)

			Convey("Then ErrNotFound is returned", func() {
				So(err, ShouldEqual, ErrNotFound)
			})
		})
	})
}
