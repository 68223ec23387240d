package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"betdao/config"
	"betdao/report"
	"betdao/scenario"

	log "github.com/sirupsen/logrus"
)

// Replay runs a scenario file against a fresh engine and prints the resulting tables.
// Events go to NATS and releases to the journal when those are configured.
func Replay(ctx context.Context, path string, out io.Writer) error {
	cfg := config.Get()
	SetupLogging(cfg)

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	stack, err := Bootstrap(ctx, cfg, sc.Protocol)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stack.Close(shutdownCtx)
	}()

	runner, err := scenario.NewRunner(stack.Protocol, sc.Start, scenario.Options{
		Bus:        stack.Bus,
		Metrics:    stack.Metrics,
		UnitOfWork: stack.UnitOfWork(),
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"scenario": sc.Name, "steps": len(sc.Steps)}).Info("Replaying scenario")
	result, runErr := runner.Run(ctx, sc)
	if result != nil {
		if err := PrintResult(out, stack.Protocol.Decimals, result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("scenario %q: %w", sc.Name, runErr)
	}
	return nil
}

// PrintResult renders the step log, bets, options and settlements of a run
func PrintResult(out io.Writer, decimals int32, result *scenario.Result) error {
	printer := report.NewPrinter(out, decimals)
	for address, name := range result.Names {
		printer.Name(address, name)
	}

	fmt.Fprintf(out, "Scenario: %s\n", result.Name)
	for _, step := range result.Steps {
		if step.Err != nil {
			fmt.Fprintf(out, "%3d %-15s error: %v\n", step.Index, step.Do, step.Err)
			continue
		}
		fmt.Fprintf(out, "%3d %-15s %s\n", step.Index, step.Do, step.Detail)
	}
	fmt.Fprintln(out)

	if err := printer.Bets(result.Bets); err != nil {
		return err
	}
	for _, bet := range result.Bets {
		if err := printer.Options(bet); err != nil {
			return err
		}
	}
	for _, settlement := range result.Settlements {
		if err := printer.Settlement(settlement); err != nil {
			return err
		}
	}
	if len(result.Obligations) > 0 {
		fmt.Fprintln(out, "\nOpen obligations")
		if err := printer.Obligations(result.Obligations); err != nil {
			return err
		}
	}
	return nil
}
