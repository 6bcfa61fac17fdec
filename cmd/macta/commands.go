package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/macta/internal/analysis"
	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/internal/diagram"
	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/procedure"
	"github.com/rendis/macta/internal/simulation"
	"github.com/rendis/macta/pkg/schema"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a BPMN document into the store",
		ArgsUsage: "<file.bpmn>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "process ID (default: the id declared in the document)"},
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "description", Usage: "description"},
			&cli.StringFlag{Name: "resources", Usage: "JSON file with the staffed stations, in visiting order"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			xmlText, err := readInput(cmd)
			if err != nil {
				return err
			}
			rt, err := openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, graph, err := rt.service.ImportModel(ctx, cmd.String("id"), cmd.String("name"), cmd.String("description"), xmlText)
			if err != nil {
				return err
			}
			if path := cmd.String("resources"); path != "" {
				var resources []schema.ResourceConfig
				if err := readJSONFile(path, &resources); err != nil {
					return err
				}
				if err := rt.service.SetResources(ctx, m.ID, resources); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.Root().Writer, "imported %s (%s): %d tasks, %d gateways, %d lanes\n",
				m.ID, m.Name, len(graph.Tasks), len(graph.Gateways), len(graph.Lanes))
			return nil
		},
	}
}

func documentCommand() *cli.Command {
	return &cli.Command{
		Name:      "document",
		Usage:     "Generate the operating procedure of a BPMN document",
		ArgsUsage: "<file.bpmn | ->",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the documentation object as JSON"},
			&cli.BoolFlag{Name: "raw", Usage: "print Markdown without terminal styling"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			xmlText, err := readInput(cmd)
			if err != nil {
				return err
			}
			svc, cleanup, err := offlineService(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := svc.DocumentXML(ctx, xmlText)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return writeJSON(cmd.Root().Writer, doc)
			}
			return renderMarkdown(cmd.Root().Writer, procedure.RenderMarkdown(doc), cmd.Bool("raw"))
		},
	}
}

func lintCommand() *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Check a BPMN document's structure and gateway conditions",
		ArgsUsage: "<file.bpmn | ->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vars", Usage: "JSON object of sample variables used to route every gateway"},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			xmlText, err := readInput(cmd)
			if err != nil {
				return err
			}
			var vars map[string]any
			if raw := cmd.String("vars"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &vars); err != nil {
					return fmt.Errorf("--vars: %w", err)
				}
			}
			svc, cleanup, err := offlineService(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Lint(ctx, xmlText, vars)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if cmd.Bool("json") {
				if err := writeJSON(w, res); err != nil {
					return err
				}
			} else {
				printIssues(w, res)
			}
			if !res.Valid() {
				return cli.Exit(fmt.Sprintf("%d lint error(s)", len(res.Errors)), 2)
			}
			return nil
		},
	}
}

func diagramCommand() *cli.Command {
	return &cli.Command{
		Name:      "diagram",
		Usage:     "Draw a BPMN document as Mermaid or PNG",
		ArgsUsage: "<file.bpmn | ->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "mermaid or png", Value: "mermaid"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (required for png)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			xmlText, err := readInput(cmd)
			if err != nil {
				return err
			}
			graph, err := bpmn.Parse(xmlText)
			if err != nil {
				return err
			}
			model, err := diagram.Build(graph)
			if err != nil {
				return err
			}

			var out []byte
			switch cmd.String("format") {
			case "mermaid":
				out = []byte(diagram.RenderMermaid(model))
			case "png":
				if cmd.String("output") == "" {
					return fmt.Errorf("--output is required for png")
				}
				if out, err = diagram.RenderImage(ctx, model); err != nil {
					return err
				}
			default:
				return fmt.Errorf("--format must be mermaid or png, got %q", cmd.String("format"))
			}

			if path := cmd.String("output"); path != "" {
				return os.WriteFile(path, out, 0o644)
			}
			_, err = cmd.Root().Writer.Write(out)
			return err
		},
	}
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run an arrival-rate simulation from a config file or a stored process",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "simulation config JSON file"},
			&cli.StringFlag{Name: "process", Usage: "stored process ID"},
			&cli.StringFlag{Name: "config-type", Usage: "stored config or preset for --process", Value: analysis.PresetStandard},
			&cli.IntFlag{Name: "hours", Usage: "simulated horizon in hours (overrides the config)"},
			&cli.StringFlag{Name: "seed", Usage: "random seed (overrides the config)"},
			&cli.IntFlag{Name: "replications", Usage: "run this many seeds and summarise", Value: 1},
			&cli.BoolFlag{Name: "summary", Usage: "print a Markdown summary instead of JSON"},
		},
		Action: runSimulate,
	}
}

func runSimulate(ctx context.Context, cmd *cli.Command) error {
	var seed *uint64
	if raw := cmd.String("seed"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("--seed: %w", err)
		}
		seed = &n
	}
	replications := int(cmd.Int("replications"))
	if replications < 1 {
		return fmt.Errorf("--replications must be at least 1")
	}

	switch {
	case cmd.String("process") != "":
		return simulateProcess(ctx, cmd, seed, replications)
	case cmd.String("config") != "":
		return simulateConfig(ctx, cmd, seed, replications)
	default:
		return fmt.Errorf("one of --config or --process is required")
	}
}

// simulateProcess runs a stored process through the analysis service.
func simulateProcess(ctx context.Context, cmd *cli.Command, seed *uint64, replications int) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	hours := int(cmd.Int("hours"))
	if hours == 0 {
		hours = 24
	}
	req := schema.SimulationRequest{
		ProcessID:       cmd.String("process"),
		ConfigType:      cmd.String("config-type"),
		SimulationHours: hours,
		Seed:            seed,
	}

	if replications > 1 {
		base := uint64(1)
		if seed != nil {
			base = *seed
		}
		summary, err := rt.service.Replicate(ctx, req, seedRange(base, replications))
		if err != nil {
			return err
		}
		return writeJSON(cmd.Root().Writer, summary)
	}

	resp, err := rt.service.Simulate(logging.WithTrigger(ctx, "cli"), req)
	if err != nil {
		return err
	}
	return writeResponse(cmd, resp)
}

// simulateConfig runs a config file without touching the store.
func simulateConfig(ctx context.Context, cmd *cli.Command, seed *uint64, replications int) error {
	raw, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	svc, cleanup, err := offlineService(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if res := svc.Validator().ValidateConfig(raw); !res.Valid() {
		printIssues(cmd.Root().ErrWriter, res)
		return res.ToError(schema.ErrCodeInvalidConfig)
	}
	var cfg schema.SimulationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if hours := int(cmd.Int("hours")); hours > 0 {
		cfg.HorizonHours = hours
	}
	if seed != nil {
		cfg.Seed = *seed
	}

	if replications > 1 {
		pool := simulation.NewPool(replications)
		defer pool.Close()
		summary, err := simulation.Replicate(ctx, cfg, seedRange(max(cfg.Seed, 1), replications), pool)
		if err != nil {
			return err
		}
		return writeJSON(cmd.Root().Writer, summary)
	}

	result, err := simulation.Run(cfg)
	if err != nil {
		return err
	}
	return writeResponse(cmd, schema.NewSimulationResponse("", result))
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Show the activity log of a simulation run",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "since", Usage: "only events after this sequence number"},
			&cli.BoolFlag{Name: "json", Usage: "print the history as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			runID := cmd.Args().First()
			if runID == "" {
				return fmt.Errorf("events: run ID required")
			}
			rt, err := openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			history, err := rt.service.RunEvents(ctx, runID, int64(cmd.Int("since")))
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if cmd.Bool("json") {
				return writeJSON(w, history)
			}
			fmt.Fprintf(w, "run %s: %s after %d event(s)\n", runID, history.State.Status, history.State.Events)
			for _, e := range history.Events {
				fmt.Fprintf(w, "%3d  %s  %s\n", e.Sequence, e.Timestamp.Format(time.RFC3339), e.Type)
			}
			return nil
		},
	}
}

func vacuumCommand() *cli.Command {
	return &cli.Command{
		Name:  "vacuum",
		Usage: "Compact the database",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.service.Compact(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "vacuum complete")
			return nil
		},
	}
}

func writeResponse(cmd *cli.Command, resp *schema.SimulationResponse) error {
	if cmd.Bool("summary") {
		return renderMarkdown(cmd.Root().Writer, summaryMarkdown(resp), false)
	}
	return writeJSON(cmd.Root().Writer, resp)
}

// seedRange returns n consecutive seeds starting at base.
func seedRange(base uint64, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = base + uint64(i)
	}
	return seeds
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
