package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/skincheck/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.OnboardingSteps, convey.ShouldEqual, 4)
			convey.So(cfg.JPEGQuality, convey.ShouldEqual, 80)
			convey.So(cfg.PaywallPlacement, convey.ShouldEqual, "StartAnalysis")
			convey.So(cfg.GatePolicy, convey.ShouldEqual, config.GatePolicyProceed)
			convey.So(cfg.AnalysisMode, convey.ShouldEqual, config.AnalysisSimulated)
			convey.So(cfg.FlagStore, convey.ShouldEqual, config.FlagStoreFile)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then derived durations should follow the millisecond fields", func() {
			convey.So(cfg.AnalysisTimeout(), convey.ShouldEqual, 30*time.Second)
			lo, hi := cfg.SimulatedLatency()
			convey.So(lo, convey.ShouldEqual, 800*time.Millisecond)
			convey.So(hi, convey.ShouldEqual, 2*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with broken fields", t, func() {
		cases := map[string]func(*config.Config){
			"no addr":            func(c *config.Config) { c.Addr = "" },
			"zero steps":         func(c *config.Config) { c.OnboardingSteps = 0 },
			"quality too high":   func(c *config.Config) { c.JPEGQuality = 101 },
			"empty mailbox":      func(c *config.Config) { c.MailboxSize = 0 },
			"failure rate":       func(c *config.Config) { c.SimulatedFailureRate = 1.5 },
			"blank placement":    func(c *config.Config) { c.PaywallPlacement = "  " },
			"unknown store":      func(c *config.Config) { c.FlagStore = "redis" },
			"sqlite no path":     func(c *config.Config) { c.FlagStore = config.FlagStoreSQLite; c.FlagStorePath = "" },
			"inverted latency":   func(c *config.Config) { c.SimulatedLatencyMinMS = 10; c.SimulatedLatencyMaxMS = 5 },
			"remote without url": func(c *config.Config) { c.AnalysisMode = config.AnalysisRemote },
			"relative gate url":  func(c *config.Config) { c.GateMode = config.GateRemote; c.GateURL = "/gate" },
			"unknown policy":     func(c *config.Config) { c.GatePolicy = "maybe" },
			"zero pixel cap":     func(c *config.Config) { c.MaxImagePixels = 0 },
			"metric namespace":   func(c *config.Config) { c.MetricsNamespace = "skin-check" },
			"metric subsystem":   func(c *config.Config) { c.MetricsSubsystem = "9flow" },
			"refresh interval":   func(c *config.Config) { c.MetricsRefreshIntervalMS = 0 },
			"unsorted buckets":   func(c *config.Config) { c.MetricsBuckets = []float64{10, 5} },
			"label without =":    func(c *config.Config) { c.MetricsLabels = "env" },
			"bad label name":     func(c *config.Config) { c.MetricsLabels = "deploy-env=prod" },
			"reserved label":     func(c *config.Config) { c.MetricsLabels = "screen=home" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" should be rejected as invalid", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When metric labels are listed", func() {
			cfg := config.New()
			cfg.MetricsLabels = " env=prod , region = eu ,"

			convey.Convey("Then they parse into constant labels", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
				labels, err := cfg.MetricLabels()
				convey.So(err, convey.ShouldBeNil)
				convey.So(labels, convey.ShouldResemble, map[string]string{"env": "prod", "region": "eu"})
				convey.So(cfg.MetricsRefreshInterval(), convey.ShouldEqual, 10*time.Second)
			})
		})

		convey.Convey("When memory store has no path", func() {
			cfg := config.New()
			cfg.FlagStore = config.FlagStoreMemory
			cfg.FlagStorePath = ""

			convey.Convey("Then it should validate", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When remote modes carry absolute URLs", func() {
			cfg := config.New()
			cfg.AnalysisMode = config.AnalysisRemote
			cfg.AnalysisURL = "https://api.example.com/analyze"
			cfg.GateMode = config.GateRemote
			cfg.GateURL = "http://localhost:7000"

			convey.Convey("Then it should validate", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
