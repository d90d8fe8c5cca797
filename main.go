package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const debounceDelay = 300 * time.Millisecond

func main() {
	vaultFlag := flag.String("vault", "", "Path to the markdown vault")
	listOnly := flag.Bool("list", false, "List tasks without the TUI (non-interactive)")
	profileName := flag.String("profile", "", "Profile name from config (optional)")
	noCache := flag.Bool("no-cache", false, "Skip the persistent task cache")
	flag.Parse()

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	name, profile, err := selectProfile(*profileName, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var resolved *ResolvedProfile
	if profile != nil {
		resolved, err = resolveProfilePaths(name, *profile)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	vaultPath := ""
	if resolved != nil {
		vaultPath = resolved.VaultPath
	}
	if *vaultFlag != "" {
		vaultPath, err = expandPath(*vaultFlag)
		if err != nil {
			fmt.Printf("Error expanding vault path: %v\n", err)
			os.Exit(1)
		}
		vaultPath = filepath.Clean(vaultPath)
		if r, err := filepath.EvalSymlinks(vaultPath); err == nil {
			vaultPath = r
		}
	}

	queryInput := ""
	if args := flag.Args(); len(args) > 0 {
		queryInput = args[0]
	} else if resolved != nil {
		queryInput = resolved.Query
	}

	if vaultPath == "" {
		usage(cfgPath)
		os.Exit(1)
	}

	var queries []*Query
	if queryInput != "" {
		queries, err = resolveQuery(queryInput, vaultPath)
		if err != nil {
			fmt.Printf("Error parsing query: %v\n", err)
			os.Exit(1)
		}
	} else {
		// No query shows everything still open.
		queries = []*Query{{Filters: []Filter{{Kind: filterStatus, Op: "not done"}}}}
	}

	opts := cfg.parseOptions()

	var proc TaskProcessor = &InlineProcessor{Opts: opts}
	if cfg.Workers > 0 {
		pool := NewPoolProcessor(cfg.Workers, opts)
		defer pool.Close()
		proc = &FallbackProcessor{Primary: pool, Secondary: &InlineProcessor{Opts: opts}}
	}

	var store *Store
	if !*noCache {
		store, err = OpenStore(filepath.Join(vaultPath, ".taskdex", "cache.db"))
		if err != nil {
			fmt.Printf("Warning: cache disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	manager := NewIndexManager(vaultPath, proc, store, opts)
	mutator := NewMutator(manager, cfg.dialect(), opts.Statuses)

	if *listOnly {
		runList(manager, queries, vaultPath)
		return
	}

	watcher, err := NewWatcher(vaultPath)
	if err != nil {
		fmt.Printf("Warning: file watching disabled: %v\n", err)
		watcher = nil
	} else {
		defer watcher.Close()
	}

	debouncer := NewDebouncer(debounceDelay)
	m := newModel(manager, mutator, watcher, debouncer, queries, vaultPath, cfg.TabWidth)
	p := tea.NewProgram(m, tea.WithAltScreen())

	debouncer.SetProgram(p)
	manager.OnUpdate(func(snap *IndexSnapshot) {
		p.Send(cacheUpdatedMsg{snapshot: snap})
	})

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

// runList prints query results once and exits.
func runList(manager *IndexManager, queries []*Query, vaultPath string) {
	if err := manager.Initialize(context.Background()); err != nil {
		fmt.Printf("Error indexing vault: %v\n", err)
		os.Exit(1)
	}

	sections := buildSections(manager, queries, vaultPath)

	total := 0
	for _, s := range sections {
		total += len(s.Tasks)
	}
	if total == 0 {
		fmt.Println("No tasks found matching any query.")
		return
	}

	fmt.Printf("Found %d task(s):\n\n", total)
	for _, section := range sections {
		if section.Name != "" {
			fmt.Printf("## %s (%d)\n", section.Name, len(section.Tasks))
		}
		for _, group := range section.Groups {
			if section.Query.GroupBy != "" && group.Name != "" {
				fmt.Printf("### %s\n", group.Name)
			}
			for _, task := range group.Tasks {
				fmt.Printf("[%s] %s (%s:%d)\n", task.Status, task.Content, relPath(vaultPath, task.FilePath), task.Line+1)
			}
		}
		fmt.Println()
	}
}

func usage(cfgPath string) {
	fmt.Println("Usage: taskdex --vault <path> [query-file.md | inline query]")
	fmt.Println("\nOptions:")
	fmt.Println("  --vault <path>    Path to the markdown vault (required)")
	fmt.Println("  --list            List tasks without the TUI")
	fmt.Println("  --profile <name>  Use a profile from config")
	fmt.Println("  --no-cache        Skip the persistent task cache")
	fmt.Println("\nSupported query filters:")
	fmt.Println("  not done / done          Completion state")
	fmt.Println("  due before <date>        Date filters (due, scheduled, starts, done, created)")
	fmt.Println("  due today or tomorrow    Date alternatives")
	fmt.Println("  description includes X   Text containment")
	fmt.Println("  tags include #tag        Tag match")
	fmt.Println("  priority is high         Priority match")
	fmt.Println("  sort by due              Sort (repeatable; add 'reverse' to flip)")
	fmt.Println("  group by folder          Grouping (folder, filename)")
	fmt.Println("\nDate values: today, tomorrow, yesterday, or YYYY-MM-DD")
	if cfgPath != "" {
		fmt.Println("\nConfig:")
		fmt.Printf("  %s\n", cfgPath)
		fmt.Println("  Define profiles with vault/query and set default_profile to skip flags.")
	}
}
