// Package main provides the AI-Scribe EMR automation runner. It drives
// the remote clinical records application through the controller:
// resolving patients, scanning their records, extracting document text,
// and opening data-entry forms.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ORHCDev/AI-Scribe/pkg/config"
	"github.com/ORHCDev/AI-Scribe/pkg/emr"
	"github.com/ORHCDev/AI-Scribe/pkg/extract"
	"github.com/ORHCDev/AI-Scribe/pkg/llm"
	llmopenai "github.com/ORHCDev/AI-Scribe/pkg/llm/openai"
	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

const version = "0.2.0"

type flags struct {
	configPath    string
	patientsPath  string
	categories    string
	generateNotes bool
	rescanCatalog bool
	headless      bool
	showVersion   bool
}

func main() {
	f := parseFlags()
	if f.showVersion {
		fmt.Printf("AI-Scribe v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, f); err != nil {
		log.Fatalf("scribe: %v", err)
	}
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to the settings file")
	flag.StringVar(&f.patientsPath, "patients", "", "file of patients to process, one 'first,last,chart' per line")
	flag.StringVar(&f.categories, "categories", "", "comma-separated document categories to extract per patient")
	flag.BoolVar(&f.generateNotes, "notes", false, "send extracted document text to the configured model for a draft note")
	flag.BoolVar(&f.rescanCatalog, "rescan-catalog", false, "rebuild the eform catalog from the remote library and exit")
	flag.BoolVar(&f.headless, "headless", false, "run the browser headless regardless of configuration")
	flag.BoolVar(&f.showVersion, "version", false, "print version and exit")
	flag.Parse()
	return f
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.headless {
		cfg.Headless = true
	}

	logger, logErr := logging.NewLogger("scribe")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	var ocr *extract.VisionOCR
	if cfg.LLM.APIKey != "" {
		ocr = extract.NewVisionOCR(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	}
	extractor := extract.NewPDFExtractor(ocr, logger)

	var provider llm.Provider
	if f.generateNotes {
		provider, err = buildProvider(cfg)
		if err != nil {
			return err
		}
	}

	controller := emr.NewPlaywrightController(cfg, extractor, logger)
	if err := controller.Start(); err != nil {
		return err
	}
	defer controller.Shutdown()

	if f.rescanCatalog {
		if err := controller.RescanEformCatalog(); err != nil {
			return err
		}
		fmt.Printf("catalog rebuilt: %d entries\n", len(controller.Catalog()))
		return nil
	}

	for doctor, appts := range controller.Appointments() {
		fmt.Printf("%s: %d appointments on schedule\n", doctor, len(appts))
	}

	if f.patientsPath == "" {
		return nil
	}

	patients, err := readPatients(f.patientsPath)
	if err != nil {
		return err
	}

	var categories []string
	for _, c := range strings.Split(f.categories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	for _, p := range patients {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		processPatient(ctx, controller, provider, p, categories)
	}
	return nil
}

// buildProvider constructs the note-generation client from the llm
// config block.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("note generation requires llm.api_key in the configuration")
	}
	var opts []llmopenai.ProviderOption
	if cfg.LLM.Model != "" {
		opts = append(opts, llmopenai.WithModel(cfg.LLM.Model))
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, llmopenai.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	return llmopenai.NewProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, opts...)
}

// notePromptTokenLimit bounds the transcript side of the prompt; the
// completion side is bounded by the provider's max-tokens setting.
const notePromptTokenLimit = 6000

const noteSystemPrompt = "You are a clinical scribe assistant. Summarize the " +
	"following patient record extracts into a concise draft note for the " +
	"treating physician. Use only information present in the text and flag " +
	"anything that needs manual review."

// generateNote forwards extracted record text to the model, bounding
// the transcript first so an oversized chart cannot blow the context
// window.
func generateNote(ctx context.Context, provider llm.Provider, transcript string) (string, error) {
	bounded := llm.TruncateTokens(transcript, notePromptTokenLimit)
	return provider.Complete(ctx, noteSystemPrompt, bounded)
}

type patient struct {
	first, last, chart string
}

func readPatients(path string) ([]patient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening patient list: %w", err)
	}
	defer f.Close()

	var out []patient
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		p := patient{}
		if len(parts) > 0 {
			p.first = strings.TrimSpace(parts[0])
		}
		if len(parts) > 1 {
			p.last = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			p.chart = strings.TrimSpace(parts[2])
		}
		out = append(out, p)
	}
	return out, scanner.Err()
}

// processPatient runs one patient through search, record scan, optional
// document extraction, and optional note generation. Failures are
// reported and the batch moves on.
func processPatient(ctx context.Context, controller *emr.Controller, provider llm.Provider, p patient, categories []string) {
	label := fmt.Sprintf("%s %s", p.first, p.last)
	if p.chart != "" {
		label += " (chart " + p.chart + ")"
	}

	ok, err := controller.SearchPatient(p.first, p.last, p.chart)
	if err != nil {
		fmt.Printf("%s: search failed: %v\n", label, err)
		return
	}
	if !ok {
		fmt.Printf("%s: not found or ambiguous, check manually\n", label)
		return
	}

	forms, err := controller.FindForms()
	if err != nil {
		fmt.Printf("%s: form scan failed: %v\n", label, err)
	} else {
		fmt.Printf("%s: %d form names on record\n", label, forms.Len())
	}

	docs, err := controller.FindDocuments()
	if err != nil {
		fmt.Printf("%s: document scan failed: %v\n", label, err)
	} else {
		fmt.Printf("%s: %d document names on record\n", label, docs.Len())
	}

	if len(categories) > 0 {
		text, err := controller.ReadDocumentsByCategory(ctx, categories)
		if err != nil {
			fmt.Printf("%s: category extraction failed: %v\n", label, err)
		} else if text == "" {
			fmt.Printf("%s: no documents matched the requested categories\n", label)
		} else {
			fmt.Println(text)
			if provider != nil {
				note, err := generateNote(ctx, provider, text)
				if err != nil {
					fmt.Printf("%s: note generation failed: %v\n", label, err)
				} else {
					fmt.Printf("--- draft note (%s) ---\n%s\n", provider.Model(), note)
				}
			}
		}
	}
}
