package lower

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/google/autopiper/internal/crosslink"
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
	"github.com/google/autopiper/internal/irtext"
	"github.com/google/autopiper/internal/lock"
	"github.com/google/autopiper/internal/pipeextract"
	"github.com/google/autopiper/internal/sideeffect"
	"github.com/google/autopiper/internal/telemetry"
	"github.com/google/autopiper/internal/timing"
	"github.com/google/autopiper/internal/typecheck"
	"github.com/google/autopiper/internal/verilog"
)

// Compiler is the top-level driver: context, logger, flags, config, pass
// list, mirroring core.Bgpipe's shape with the stage list replaced by the
// fixed lowering pipeline of spec.md §2.
type Compiler struct {
	zerolog.Logger

	Ctx    context.Context
	Cancel context.CancelFunc

	F *pflag.FlagSet
	K *koanf.Koanf

	Metrics *telemetry.Metrics
	Hub     *telemetry.Hub

	profile *timing.Profile
}

// New returns a Compiler with default logger, flags and config, ready for
// Configure.
func New() *Compiler {
	c := &Compiler{}
	c.Ctx, c.Cancel = context.WithCancel(context.Background())

	c.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}).With().Timestamp().Logger()

	c.K = koanf.New(".")
	c.F = pflag.NewFlagSet("autopiper", pflag.ContinueOnError)
	c.addFlags()

	c.Metrics = telemetry.New()
	c.Hub = telemetry.NewHub()

	return c
}

func (c *Compiler) applyLogLevel() error {
	lvl, err := zerolog.ParseLevel(c.K.String("log"))
	if err != nil {
		return fmt.Errorf("--log: %w", err)
	}
	c.Logger = c.Logger.Level(lvl)
	return nil
}

func (c *Compiler) loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prof, err := timing.ParseProfile(data)
	if err != nil {
		return err
	}
	c.profile = prof
	return nil
}

func (c *Compiler) timingModel() timing.Model {
	var base timing.Model = timing.NewStandardModel()
	if c.K.String("timing-model") == "null" {
		base = timing.NullModel{}
	}
	if c.profile != nil {
		return c.profile.Model(base)
	}
	return base
}

// Run executes Configure's parsed request: parse the input IR, lower it,
// and write the resulting Verilog, reporting every diagnostic on the way.
// Run aborts at the first pass whose collector holds an ERROR diagnostic.
func (c *Compiler) Run() error {
	var unlock func() error
	if c.K.Bool("lock") {
		if out := c.K.String("output"); out != "" {
			l, err := lock.Acquire(out)
			if err != nil {
				return fmt.Errorf("acquire output lock: %w", err)
			}
			unlock = l.Release
		}
	}
	if unlock != nil {
		defer unlock()
	}

	var server *telemetry.Server
	if addr := c.K.String("metrics-addr"); addr != "" {
		server = telemetry.NewServer(c.Metrics, c.Hub)
		go c.serveMetrics(addr, server)
	}

	start := time.Now()
	err := c.run(server)
	c.Metrics.ObservePass("total", time.Since(start).Seconds())
	c.Metrics.IncRun()

	if topic := c.K.String("events-topic"); topic != "" {
		c.publishResult(err)
	}
	if server != nil {
		server.SetReady(true)
	}
	return err
}

func (c *Compiler) run(server *telemetry.Server) error {
	input := c.K.String("input")
	fh, err := irtext.Open(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer fh.Close()

	p, err := irtext.Parse(input, fh)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if c.K.Bool("print-ir") || server != nil {
		text := renderProgram(p)
		if server != nil {
			server.SetIR(text)
		}
		if c.K.Bool("print-ir") {
			fmt.Print(text)
		}
	}

	d := diag.NewCollector()
	if err := c.runPass(errFuncPass{"crosslink", crosslink.Run}, p, d); err != nil {
		return c.fail(d, err)
	}
	if err := c.runPass(funcPass{"typecheck", typecheck.Run}, p, d); err != nil {
		return c.fail(d, err)
	}
	if err := c.runPass(funcPass{"pipeextract", pipeextract.Run}, p, d); err != nil {
		return c.fail(d, err)
	}
	sideeffect.LinkChans(p, d)

	workers := c.K.Int("workers")
	t0 := time.Now()
	c.Hub.Publish(telemetry.Event{Type: "pass-start", Pass: "lower"})
	if err := runSysPool(p, d, c.timingModel(), workers); err != nil {
		c.Hub.Publish(telemetry.Event{Type: "pass-done", Pass: "lower", Message: err.Error()})
		return c.fail(d, err)
	}
	c.Metrics.ObservePass("lower", time.Since(t0).Seconds())
	c.Hub.Publish(telemetry.Event{Type: "pass-done", Pass: "lower"})

	if c.K.Bool("print-lowered") || server != nil {
		text := renderProgram(p)
		if server != nil {
			server.SetLowered(text)
		}
		if c.K.Bool("print-lowered") {
			fmt.Print(text)
		}
	}

	out := os.Stdout
	if path := c.K.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		if err := verilog.EmitProgram(p, f); err != nil {
			return c.fail(d, err)
		}
	} else if err := verilog.EmitProgram(p, out); err != nil {
		return c.fail(d, err)
	}

	d.WriteTo(os.Stderr)
	for range d.Items() {
		c.Metrics.IncDiagnostic()
	}
	return nil
}

func (c *Compiler) runPass(pass Pass, p *ir.Program, d *diag.Collector) error {
	start := time.Now()
	c.Hub.Publish(telemetry.Event{Type: "pass-start", Pass: pass.Name()})
	err := pass.Run(p, d)
	c.Metrics.ObservePass(pass.Name(), time.Since(start).Seconds())
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.Hub.Publish(telemetry.Event{Type: "pass-done", Pass: pass.Name(), Message: msg})
	return err
}

func (c *Compiler) fail(d *diag.Collector, err error) error {
	d.WriteTo(os.Stderr)
	c.Error().Err(err).Msg("lowering failed")
	return err
}

func (c *Compiler) serveMetrics(addr string, server *telemetry.Server) {
	c.Info().Str("addr", addr).Msg("serving telemetry")
	if err := http.ListenAndServe(addr, server.Router()); err != nil && err != http.ErrServerClosed {
		c.Warn().Err(err).Msg("telemetry server exited")
	}
}

func (c *Compiler) publishResult(runErr error) {
	brokers := c.K.Strings("brokers")
	topic := c.K.String("events-topic")
	pub, err := telemetry.NewPublisher(c.Ctx, brokers, topic)
	if err != nil {
		c.Warn().Err(err).Msg("could not connect to Kafka; skipping run-result publication")
		return
	}
	defer pub.Close()

	res := telemetry.RunResult{
		Program: c.K.String("input"),
		Success: runErr == nil,
	}
	if err := pub.Publish(c.Ctx, res); err != nil {
		c.Warn().Err(err).Msg("could not publish run result")
	}
}

func renderProgram(p *ir.Program) string {
	var buf strings.Builder
	irtext.Print(p, &buf)
	return buf.String()
}
