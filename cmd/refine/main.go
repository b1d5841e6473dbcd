// Package main provides the interactive CLI for prompt refinement
// sessions.
//
// refine drives one session at a time: send the current prompt to the
// target model, review the evaluation, and iterate on the prompt via
// assistant suggestions or manual edits.
//
// Usage:
//
//	refine new "<prompt>" [--query "<goal>"]  - Start a new session and interact
//	refine load <session-id>                  - Load a session and interact
//	refine list                               - List sessions
//	refine search "<query>"                   - Search archived iterations
//	refine version                            - Show version
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/refine/internal/bootstrap"
	"github.com/ternarybob/refine/internal/config"
	"github.com/ternarybob/refine/pkg/engine"
	"github.com/ternarybob/refine/pkg/session"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "new":
		err = cmdNew(os.Args[2:])
	case "load":
		err = cmdLoad(os.Args[2:])
	case "list":
		err = cmdList()
	case "search":
		err = cmdSearch(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("refine version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`refine - Interactive prompt refinement

Usage:
  refine new "<prompt>" [--query "<goal>"]   Start a new session
  refine load <session-id>                   Load an existing session
  refine list                                List sessions
  refine search "<query>"                    Search archived iterations
  refine version                             Show version
  refine help                                Show this help

Configuration:
  Config file: ~/.refine-service/config.toml`)
}

func newRuntime() (*bootstrap.Runtime, error) {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return bootstrap.New(context.Background(), cfg)
}

func cmdNew(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: refine new \"<prompt>\" [--query \"<goal>\"]")
	}
	prompt := args[0]
	goalQuery := ""
	for i := 1; i < len(args)-1; i++ {
		if args[i] == "--query" || args[i] == "-q" {
			goalQuery = args[i+1]
		}
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	e, err := rt.EngineFactory()()
	if err != nil {
		return err
	}

	s, err := e.StartSession(prompt, goalQuery)
	if err != nil {
		return err
	}

	fmt.Printf("New session created with ID: %s\n", s.ID)
	return interact(e)
}

func cmdLoad(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: refine load <session-id>")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	e, err := rt.EngineFactory()()
	if err != nil {
		return err
	}

	s, err := e.LoadSession(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session %s loaded (%d iterations).\n", s.ID, len(s.History))
	return interact(e)
}

func cmdList() error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	summaries, err := rt.Store.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No existing sessions found.")
		return nil
	}

	fmt.Println("Available sessions:")
	for _, s := range summaries {
		fmt.Printf("- ID: %s\n", s.ID)
		fmt.Printf("  Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Prompt: %q\n", s.PromptPreview)
		fmt.Printf("  Iterations: %d\n", s.Iterations)
		fmt.Printf("  Status: %s\n", s.Status)
	}
	return nil
}

func cmdSearch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: refine search \"<query>\"")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.Archive == nil {
		return fmt.Errorf("archive search is disabled in config")
	}

	results, err := rt.Archive.Search(context.Background(), args[0], 10)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching iterations found.")
		return nil
	}

	for _, r := range results {
		fmt.Printf("%d. session %s iteration %d (%.0f%% match)\n", r.Rank, r.SessionID, r.Iteration, r.Score*100)
		fmt.Printf("   prompt: %s\n", r.Prompt)
	}
	return nil
}

// interact runs the session action loop until the user exits or ends
// the session.
func interact(e *engine.Engine) error {
	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	for {
		s := e.Session()
		if s == nil {
			return nil
		}

		fmt.Println("\n--- Current State ---")
		fmt.Printf("Session ID: %s\n", s.ID)
		fmt.Printf("Phase: %s\n", e.Phase())
		fmt.Printf("Current Prompt:\n%s\n", s.CurrentPrompt)
		if s.GoalQuery != "" {
			fmt.Printf("Goal Query: %s\n", s.GoalQuery)
		}
		if last := s.Last(); last != nil && last.Response != nil {
			fmt.Printf("Last Response:\n%s\n", *last.Response)
			if last.Evaluation != nil {
				fmt.Printf("Last Evaluation: verdict=%s refusal=%v scores=%v\n",
					last.Evaluation.Verdict, last.Evaluation.Refusal, last.Evaluation.Scores)
			}
		}

		fmt.Println("\n--- Actions ---")
		fmt.Println("1. Process current prompt with target model")
		fmt.Println("2. Get modification suggestion")
		fmt.Println("3. Manually edit current prompt")
		fmt.Println("4. View full session history")
		fmt.Println("5. End current session")
		fmt.Println("0. Exit interaction")
		fmt.Print("Choose an action: ")

		choice, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}

		switch strings.TrimSpace(choice) {
		case "1":
			fmt.Println("Processing...")
			it, err := e.ProcessCurrentPrompt(ctx)
			if err != nil {
				fmt.Printf("Failed: %v\n", err)
				continue
			}
			if it.Response != nil {
				fmt.Printf("Response received (%d chars).\n", len(*it.Response))
			}

		case "2":
			fmt.Println("Getting suggestion...")
			sug, err := e.RequestModification(ctx)
			if err != nil {
				fmt.Printf("Failed: %v\n", err)
				continue
			}
			fmt.Printf("Suggested New Prompt:\n%s\n", sug.RevisedPrompt)
			fmt.Print("Apply this suggestion? [y/N]: ")
			answer, _ := reader.ReadString('\n')
			if strings.EqualFold(strings.TrimSpace(answer), "y") {
				if err := e.AcceptSuggestion(); err != nil {
					fmt.Printf("Failed: %v\n", err)
					continue
				}
				fmt.Println("Suggestion applied. Process the new prompt to see its effect.")
			} else {
				if err := e.RejectSuggestion(); err != nil {
					fmt.Printf("Failed: %v\n", err)
					continue
				}
				fmt.Println("Suggestion not applied. Current prompt remains unchanged.")
			}

		case "3":
			fmt.Print("Enter the new prompt: ")
			edited, _ := reader.ReadString('\n')
			edited = strings.TrimSpace(edited)
			if edited == "" || edited == s.CurrentPrompt {
				fmt.Println("Prompt not changed.")
				continue
			}
			if err := e.ManualEdit(edited); err != nil {
				fmt.Printf("Failed: %v\n", err)
				continue
			}
			fmt.Println("Prompt manually updated. Process it to see its effect.")

		case "4":
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				fmt.Printf("Failed: %v\n", err)
				continue
			}
			fmt.Println("--- Full Session History ---")
			fmt.Println(string(data))

		case "5":
			fmt.Print("End session status (completed/aborted) [completed]: ")
			statusLine, _ := reader.ReadString('\n')
			status := session.Status(strings.TrimSpace(statusLine))
			if status == "" {
				status = session.StatusCompleted
			}
			id := s.ID
			if err := e.End(status); err != nil {
				fmt.Printf("Failed: %v\n", err)
				continue
			}
			fmt.Printf("Session %s ended.\n", id)
			return nil

		case "0":
			fmt.Println("Exiting interaction mode.")
			return nil

		default:
			fmt.Println("Invalid choice.")
		}
	}
}
