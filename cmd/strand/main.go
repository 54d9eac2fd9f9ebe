// Command strand runs AI-agent workflows: execute a workflow file, validate
// it, serve the REST/SSE API, or manage registered workspaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/strandworks/strand/common/bootstrap"
	"github.com/strandworks/strand/runner"
	"github.com/strandworks/strand/schema"
	"github.com/strandworks/strand/sdk"
	"github.com/strandworks/strand/server"
	"github.com/strandworks/strand/triggers"
)

const usageText = `strand - AI-agent workflow orchestrator

Usage:
  strand run <workflow> [--cwd DIR] [--input TEXT] [--no-validation] [--yolo]
  strand validate <workflow>...
  strand serve [--port P] [--yolo]
  strand init
  strand add <dir>
  strand remove <name|dir>
  strand list
`

// Exit codes: 0 success, 1 validation or execution failure, 2 usage error.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return exitUsage
	}

	switch args[0] {
	case "run":
		return cmdRun(args[1:])
	case "validate":
		return cmdValidate(args[1:])
	case "serve":
		return cmdServe(args[1:])
	case "init", "add", "remove", "list":
		return cmdWorkspace(args[0], args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usageText)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usageText)
		return exitUsage
	}
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cwd := fs.String("cwd", "", "working directory for node subprocesses")
	input := fs.String("input", "", "trigger input text")
	noValidation := fs.Bool("no-validation", false, "skip structural validation")
	yolo := fs.Bool("yolo", false, "relax agent permission prompts")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "run takes exactly one workflow file")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []bootstrap.Option{}
	if *yolo {
		opts = append(opts, bootstrap.WithYolo())
	}
	components, err := bootstrap.Setup(ctx, "strand", opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return exitFail
	}
	defer components.Shutdown(ctx)

	var triggerInputs map[string]any
	if *input != "" {
		triggerInputs = map[string]any{"text": *input}
	}

	encoder := sdk.NewEventEncoder(os.Stdout)
	outcome, err := components.Runner.Run(ctx, runner.Spec{
		WorkflowPath:   fs.Arg(0),
		Cwd:            *cwd,
		TriggerInputs:  triggerInputs,
		Source:         "manual",
		SkipValidation: *noValidation,
	}, func(evt sdk.Event) {
		if err := encoder.Encode(evt); err != nil {
			components.Logger.Warn("failed to write event", "error", err)
		}
	})
	if err != nil {
		var verr *runner.ValidationError
		if errors.As(err, &verr) {
			printIssues(fs.Arg(0), verr.Issues)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return exitFail
	}

	if !outcome.Result.Succeeded() {
		fmt.Fprintf(os.Stderr, "run %s: %s\n", outcome.Result.Status, outcome.Result.Error)
		return exitFail
	}
	return exitOK
}

func cmdValidate(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "validate takes one or more workflow files")
		return exitUsage
	}

	issueCount := 0
	for _, path := range args {
		wf, err := schema.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			issueCount++
			continue
		}
		issues := schema.Validate(wf)
		printIssues(path, issues)
		issueCount += len(issues)
	}

	if issueCount > 0 {
		return exitFail
	}
	return exitOK
}

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 0, "listen port (overrides PORT)")
	yolo := fs.Bool("yolo", false, "relax agent permission prompts")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []bootstrap.Option{}
	if *yolo {
		opts = append(opts, bootstrap.WithYolo())
	}
	components, err := bootstrap.Setup(ctx, "strand-server", opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return exitFail
	}
	defer components.Shutdown(ctx)

	if err := components.Workspaces.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare state directory: %v\n", err)
		return exitFail
	}

	// Register cron/idle triggers from every workflow in the registered
	// workspaces, then start the scheduler alongside the server.
	sched := triggers.NewScheduler(triggers.Opts{
		Tick:    components.Config.Triggers.Tick,
		Starter: components.Runner,
		History: components.History,
		Logger:  components.Logger,
	})
	registerTriggers(components, sched)
	go sched.Start(ctx)

	listenPort := components.Config.Service.Port
	if *port != 0 {
		listenPort = *port
	}

	srv := server.New(server.Opts{
		Runner:     components.Runner,
		History:    components.History,
		Workspaces: components.Workspaces,
		Logger:     components.Logger,
		Port:       listenPort,
	})
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return exitFail
	}
	return exitOK
}

func registerTriggers(components *bootstrap.Components, sched *triggers.Scheduler) {
	list, err := components.Workspaces.List()
	if err != nil {
		components.Logger.Warn("failed to list workspaces for triggers", "error", err)
		return
	}
	for _, ws := range list {
		for _, path := range server.DiscoverWorkflows(ws.Path) {
			wf, err := schema.Load(path)
			if err != nil {
				components.Logger.Warn("skipping unreadable workflow", "path", path, "error", err)
				continue
			}
			if err := sched.Register(ws.Name, path, wf); err != nil {
				components.Logger.Warn("failed to register triggers", "path", path, "error", err)
			}
		}
	}
}

func cmdWorkspace(cmd string, args []string) int {
	ctx := context.Background()
	components, err := bootstrap.Setup(ctx, "strand", bootstrap.WithoutRedis())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return exitFail
	}
	defer components.Shutdown(ctx)
	registry := components.Workspaces

	switch cmd {
	case "init":
		if err := registry.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFail
		}
		fmt.Printf("initialized state directory at %s\n", components.Config.Home.Dir)

	case "add":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "add takes exactly one directory")
			return exitUsage
		}
		ws, err := registry.Add(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFail
		}
		fmt.Printf("added workspace %s (%s)\n", ws.Name, ws.Path)

	case "remove":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "remove takes exactly one workspace name or path")
			return exitUsage
		}
		if err := registry.Remove(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFail
		}
		fmt.Printf("removed workspace %s\n", args[0])

	case "list":
		list, err := registry.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFail
		}
		if len(list) == 0 {
			fmt.Println("no workspaces registered")
			return exitOK
		}
		for _, ws := range list {
			fmt.Printf("%s\t%s\n", ws.Name, ws.Path)
		}
	}
	return exitOK
}

func printIssues(path string, issues []schema.Issue) {
	for _, issue := range issues {
		loc := ""
		if issue.NodeID != "" {
			loc = " node=" + issue.NodeID
		}
		if issue.EdgeID != "" {
			loc += " edge=" + issue.EdgeID
		}
		fmt.Fprintf(os.Stderr, "%s: %s: %s%s\n", path, issue.Severity, issue.Message, loc)
	}
}
