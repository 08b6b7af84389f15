// Command combatsim plays YAML combat scenarios and checks their outcome.
//
//	combatsim [-v] [-json] [-replays dir] scenario.yaml...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/magefree/mage-combat-go/internal/game"
	"github.com/magefree/mage-combat-go/internal/scenario"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	flagVerbose bool
	flagJSON    bool
	flagReplays string
)

func init() {
	flag.BoolVar(&flagVerbose, "v", false, "log every combat step")
	flag.BoolVar(&flagJSON, "json", false, "print each result as JSON")
	flag.StringVar(&flagReplays, "replays", "", "record replays of every scenario into this directory")
}

type summary struct {
	Scenario    string               `json:"scenario"`
	File        string               `json:"file"`
	LegalBlocks bool                 `json:"legal_blocks"`
	Dead        []string             `json:"dead"`
	DealtBy     map[string]int       `json:"dealt_by"`
	Life        map[string]int       `json:"life"`
	Messages    []game.EngineMessage `json:"messages"`
	Failures    []string             `json:"failures,omitempty"`
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: combatsim [-v] [-json] [-replays dir] scenario.yaml...")
		os.Exit(2)
	}

	logger := newLogger(flagVerbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := game.NewEngine(logger, game.Options{
		VerifyBlockerIndex: true,
		RecordReplays:      flagReplays != "",
		ReplayDir:          flagReplays,
	})
	runner := scenario.NewRunner(engine, logger)

	failed := 0
	for _, path := range flag.Args() {
		s, err := scenario.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			failed++
			continue
		}

		result, err := runner.Run(ctx, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		sum := summarize(path, s, result)
		if len(sum.Failures) > 0 {
			failed++
		}
		if flagJSON {
			out, _ := json.MarshalIndent(sum, "", "  ")
			fmt.Println(string(out))
		} else {
			printSummary(sum)
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d scenarios failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func summarize(path string, s *scenario.Scenario, r *scenario.Result) summary {
	sum := summary{
		Scenario:    s.Name,
		File:        path,
		LegalBlocks: r.LegalBlocks,
		Dead:        r.Dead,
		DealtBy:     r.DealtBy,
		Life:        make(map[string]int),
		Messages:    r.Messages,
	}
	for _, p := range r.View.Players {
		sum.Life[p.ID] = p.Life
	}
	if err := s.Check(r); err != nil {
		sum.Failures = strings.Split(err.Error(), "\n")
	}
	return sum
}

func printSummary(sum summary) {
	status := "PASS"
	if len(sum.Failures) > 0 {
		status = "FAIL"
	}
	fmt.Printf("%s %s (%s)\n", status, sum.Scenario, sum.File)
	fmt.Printf("  blocks legal as declared: %t\n", sum.LegalBlocks)
	for id, life := range sum.Life {
		fmt.Printf("  life %s: %d\n", id, life)
	}
	if len(sum.Dead) > 0 {
		fmt.Printf("  died: %s\n", strings.Join(sum.Dead, ", "))
	}
	for id, n := range sum.DealtBy {
		fmt.Printf("  %s dealt %d\n", id, n)
	}
	for _, m := range sum.Messages {
		fmt.Printf("  > %s\n", m.Text)
	}
	for _, f := range sum.Failures {
		fmt.Printf("  ! %s\n", f)
	}
}

func newLogger(verbose bool) *zap.Logger {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
