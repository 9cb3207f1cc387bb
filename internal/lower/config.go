package lower

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/knadh/koanf/providers/posflag"
)

func (c *Compiler) addFlags() {
	f := c.F
	f.SortFlags = false
	f.Usage = c.usage
	f.StringP("output", "o", "", "write the lowered Verilog to this path instead of stdout")
	f.Bool("print-ir", false, "print the parsed IR (before lowering) and continue")
	f.Bool("print-lowered", false, "print the IR after the full lowering pipeline and continue")
	f.BoolP("help", "h", false, "print usage and quit")
	f.BoolP("version", "v", false, "print detailed version info and quit")
	f.String("config", "", "JSON config file (timing-profile overrides, etc.)")
	f.String("metrics-addr", "", "serve /metrics, /healthz, /ir, /lowered, /events on this address")
	f.String("events-topic", "", "publish one run-result record to this Kafka topic")
	f.StringSlice("brokers", []string{"localhost:9092"}, "Kafka brokers for --events-topic")
	f.Bool("lock", false, "flock the output path for the duration of the run")
	f.String("timing-model", "standard", "gate-delay model: standard or null")
	f.StringP("log", "l", "info", "log level (debug/info/warn/error/disabled)")
	f.Int("workers", 0, "worker-pool size for per-PipeSys lowering fan-out (0 = GOMAXPROCS)")
}

func (c *Compiler) usage() {
	fmt.Fprintf(os.Stderr, "Usage: autopiper [OPTIONS] FILE.ir\n\nOptions:\n")
	c.F.PrintDefaults()
}

// Configure parses CLI flags into c.K, handling -h/--help and -v/--version
// as immediate-exit branches the way core.Bgpipe.parseArgs does.
func (c *Compiler) Configure(args []string) error {
	if err := c.F.Parse(args); err != nil {
		return fmt.Errorf("could not parse CLI flags: %w", err)
	}
	if err := c.K.Load(posflag.Provider(c.F, ".", c.K), nil); err != nil {
		return fmt.Errorf("could not load flags into config: %w", err)
	}

	if c.K.Bool("help") {
		c.usage()
		os.Exit(0)
	}
	if c.K.Bool("version") {
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			fmt.Fprintf(os.Stderr, "autopiper build info:\n%s", bi)
		}
		os.Exit(0)
	}

	rem := c.F.Args()
	if len(rem) != 1 {
		return fmt.Errorf("expected exactly one positional IR file argument, got %d", len(rem))
	}
	c.K.Set("input", rem[0])

	if err := c.applyLogLevel(); err != nil {
		return err
	}
	if cfg := c.K.String("config"); cfg != "" {
		if err := c.loadConfigFile(cfg); err != nil {
			return fmt.Errorf("--config %s: %w", cfg, err)
		}
	}
	return nil
}
