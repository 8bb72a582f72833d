package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/yk9331/logseq-rag-chatbot/internal/models"
	"github.com/yk9331/logseq-rag-chatbot/pkg/chain"
	cfgPkg "github.com/yk9331/logseq-rag-chatbot/pkg/config"
	"github.com/yk9331/logseq-rag-chatbot/pkg/graph"
	"github.com/yk9331/logseq-rag-chatbot/pkg/indexer"
	"github.com/yk9331/logseq-rag-chatbot/pkg/llm"
	"github.com/yk9331/logseq-rag-chatbot/pkg/processor"
	"github.com/yk9331/logseq-rag-chatbot/pkg/retriever"
	"github.com/yk9331/logseq-rag-chatbot/pkg/store"
	"github.com/yk9331/logseq-rag-chatbot/server"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	var pageName string
	var includeLinked bool
	var serveAddr string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&pageName, "page", "", "Page to chat with (skips the picker)")
	flag.BoolVar(&includeLinked, "linked", true, "Include pages linked to the selected page")
	flag.StringVar(&serveAddr, "serve", "", "Run the WebSocket chat server on this address instead of the CLI")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	// The flag only overrides the config when passed explicitly.
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "linked" {
			config.Chat.IncludeLinked = &includeLinked
		}
	})
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		os.Exit(1)
	}

	app, err := buildApp(config)
	if err != nil {
		log.Fatal(err)
	}
	defer app.vectorStore.Close()

	if serveAddr != "" {
		srv := server.New(app.chain, app.indexer, app.graph, server.Config{
			HistoryTurns:  config.Chat.HistoryTurns,
			IncludeLinked: *config.Chat.IncludeLinked,
			Streaming:     config.Chat.Streaming,
		})
		log.Printf("Starting WebSocket server on %s", serveAddr)
		log.Fatal(srv.Run(serveAddr))
	}

	if err := runChat(app, config, pageName, *config.Chat.IncludeLinked); err != nil {
		log.Fatal(err)
	}
}

type app struct {
	graph       *graph.Client
	vectorStore *store.VectorStore
	indexer     *indexer.Indexer
	chain       *chain.ChatChain
}

func buildApp(config *cfgPkg.Config) (*app, error) {
	graphClient := graph.NewClient(graph.ClientConfig{
		BaseURL: config.Logseq.APIURL,
		Token:   config.Logseq.APIToken,
	})

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		APIKey:      config.OpenAI.APIKey,
		BaseURL:     config.OpenAI.BaseURL,
		Model:       config.OpenAI.EmbeddingModel,
		RateLimit:   config.OpenAI.RateLimit,
		MaxAttempts: config.OpenAI.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		APIKey:       config.OpenAI.APIKey,
		BaseURL:      config.OpenAI.BaseURL,
		Model:        config.OpenAI.Model,
		Temperature:  config.OpenAI.Temperature,
		MaxTokens:    config.OpenAI.MaxTokens,
		SystemPrompt: config.OpenAI.ChatPrompt,
		MaxAttempts:  config.OpenAI.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString:     config.Database.URL,
		FragmentTable:  config.Database.FragmentTable,
		WatermarkTable: config.Database.WatermarkTable,
		VectorDim:      config.Database.VectorDim,
		BatchSize:      config.Database.BatchSize,
		SearchLimit:    config.Chat.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %v", err)
	}

	chunker := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.Chunker.ChunkSize,
		ChunkOverlap: config.Chunker.ChunkOverlap,
	})

	ix := indexer.NewWithConfig(indexer.IndexerConfig{
		EmbedBatchSize: config.Database.BatchSize,
	}, graphClient, embedder, &chunker, vectorStore)

	ragChain := chain.New(chatEngine, retriever.New(embedder, vectorStore, config.Chat.TopK))

	return &app{
		graph:       graphClient,
		vectorStore: vectorStore,
		indexer:     ix,
		chain:       ragChain,
	}, nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// listPages prints the selectable pages, journals filtered out, most
// recently updated first.
func listPages(ctx context.Context, g *graph.Client) error {
	pages, err := g.GetAllPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pages: %v", err)
	}

	color.Cyan("\nPages:")
	for _, page := range graph.SelectablePages(pages) {
		fmt.Printf("  %s\n", graph.DisplayName(page))
	}
	return nil
}

// syncScope indexes the page and returns the page ids queries are
// restricted to. A failed sync leaves the previous scope unusable: the
// caller must not query until a sync succeeds.
func syncScope(ctx context.Context, app *app, pageName string, includeLinked bool) ([]string, error) {
	bar := getSpinner(fmt.Sprintf(" Indexing %q...", pageName))
	defer bar.Finish()

	pages, err := app.indexer.Sync(ctx, pageName, includeLinked)
	if err != nil {
		return nil, err
	}

	scope := make([]string, len(pages))
	for i, page := range pages {
		scope[i] = page.ID
	}
	color.Green("\n✓ Indexed %d page(s)\n", len(pages))
	return scope, nil
}

func runChat(app *app, config *cfgPkg.Config, pageName string, includeLinked bool) error {
	ctx := context.Background()

	color.Cyan("\nChat with your Logseq pages (type 'exit' to quit, '/page <name>' to switch pages)")

	if pageName == "" {
		if err := listPages(ctx, app.graph); err != nil {
			return err
		}
		color.Yellow("\nSelect a page with '/page <name>' to begin.")
	}

	var scope []string
	if pageName != "" {
		var err error
		scope, err = syncScope(ctx, app, pageName, includeLinked)
		if err != nil {
			return fmt.Errorf("failed to index %q: %v", pageName, err)
		}
	}

	history := models.NewChatHistory(config.Chat.HistoryTurns)
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" {
			break
		}

		if name, ok := strings.CutPrefix(input, "/page "); ok {
			newScope, err := syncScope(ctx, app, strings.TrimSpace(name), includeLinked)
			if err != nil {
				color.Red("Failed to index page: %v\n", err)
				continue
			}
			scope = newScope
			history.Clear()
			continue
		}

		if len(scope) == 0 {
			color.Yellow("No page selected. Use '/page <name>' first.\n")
			continue
		}

		spinner := getSpinner(" Thinking...")
		result, err := app.chain.Ask(ctx, input, scope, history)
		spinner.Finish()

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("\nAssistant: %s\n", result.Answer.Answer)
		printSources(result)

		history.AppendTurn(input, result.Answer.Answer)
	}

	return nil
}

func printSources(result *models.ChatResult) {
	if len(result.Answer.Citations) == 0 {
		return
	}
	color.Blue("Sources:")
	for _, idx := range result.Answer.Citations {
		if idx < 0 || idx >= len(result.Fragments) {
			continue
		}
		fragment := result.Fragments[idx]
		fmt.Printf("  [%d] block %s: %s\n", idx, fragment.BlockID, truncate(fragment.Text, 80))
	}
}

// truncate shortens s to at most max runes, never splitting a rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
