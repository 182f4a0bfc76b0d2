package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/headswap/rig"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *rig.Config
	StateTracker *rig.StateTracker
	MQTTClient   *rig.MQTTClient
	Publisher    *rig.Publisher
	History      *rig.HistoryStore
	Importer     rig.Importer

	// CLI Flags (effectively dependencies)
	ConfigFile string
	HeadPath   string
	BodyPath   string
	Executable string
	OutputFile string
	HttpPort   int
	TestLaunch bool

	// merges mutate the merged rig in place and must not overlap
	mergeMu   sync.Mutex
	historyMu sync.Mutex
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: rig.NewStateTracker(),
		Importer:     rig.DocumentImporter{},
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.HeadPath = opts.HeadPath
	a.BodyPath = opts.BodyPath
	a.Executable = opts.Executable
	a.OutputFile = opts.OutputFile
	a.HttpPort = opts.HttpPort
	a.TestLaunch = opts.TestLaunch
}

// loadConfig reads the config file once. An explicitly named file must exist;
// the default file is optional.
func (a *App) loadConfig() (*rig.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}

	var config *rig.Config
	var err error
	if a.ConfigFile == "" || a.ConfigFile == rig.DefaultConfigFile {
		config, err = rig.LoadConfigOrDefault(rig.DefaultConfigFile)
	} else {
		config, err = rig.LoadConfig(a.ConfigFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if a.Executable != "" {
		config.Tool.Executable = a.Executable
	}
	if a.HttpPort != 0 {
		config.HTTP.Port = a.HttpPort
	}
	a.Config = config
	return config, nil
}

// mergeTool resolves the tool with an optional executable override
func (a *App) mergeTool(override string) (*rig.MergeTool, error) {
	config, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	c := *config
	if override != "" {
		c.Tool.Executable = override
	}
	tool, err := c.MergeTool()
	if err != nil {
		return tool, err
	}
	return tool, tool.Validate()
}

func (a *App) openHistory() {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	if a.History != nil {
		return
	}
	config, err := a.loadConfig()
	if err != nil {
		log.Printf("Warning: merge history disabled: %v", err)
		return
	}
	h, err := rig.OpenHistory(config.HistoryPath())
	if err != nil {
		log.Printf("Warning: merge history disabled: %v", err)
		return
	}
	a.History = h
}

// Merge runs the full pipeline for one head/body pair. Calls are serialized.
func (a *App) Merge(headPath, bodyPath, executable string) (*rig.Result, error) {
	a.mergeMu.Lock()
	defer a.mergeMu.Unlock()

	config, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	tool, err := a.mergeTool(executable)
	if err != nil {
		res := &rig.Result{Report: &rig.MergeReport{
			StartedAt: time.Now(),
			HeadAsset: headPath,
			BodyAsset: bodyPath,
			Error:     err.Error(),
		}}
		a.record(res)
		return res, err
	}

	p := rig.NewPipeline(config, tool, a.Importer)
	res, err := p.Run(headPath, bodyPath)
	a.record(res)
	return res, err
}

// Reconcile reconciles an existing merged rig. Calls are serialized with Merge.
func (a *App) Reconcile(mergedPath, headPath, bodyPath string) (*rig.Result, error) {
	a.mergeMu.Lock()
	defer a.mergeMu.Unlock()

	config, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	p := rig.NewPipeline(config, nil, a.Importer)
	res, err := p.ReconcileFiles(mergedPath, headPath, bodyPath)
	a.record(res)
	return res, err
}

// record stores a finished run in the state tracker, history and broker
func (a *App) record(res *rig.Result) {
	if res == nil || res.Report == nil {
		return
	}
	a.StateTracker.RecordResult(res.Merged, res.Report)

	a.openHistory()
	if a.History != nil {
		if _, err := a.History.Record(context.Background(), res.Report); err != nil {
			log.Printf("Warning: failed to record merge history: %v", err)
		}
	}

	if a.Publisher != nil {
		if err := a.Publisher.PublishReport(res.Report); err != nil {
			log.Printf("Error publishing merge report: %v", err)
		}
	}
}

func (a *App) requireSources() error {
	if a.HeadPath == "" || a.BodyPath == "" {
		return errors.New("both --head and --body are required")
	}
	return nil
}

// RunMerge runs the full merge from the command line
func (a *App) RunMerge() error {
	if err := a.requireSources(); err != nil {
		return err
	}

	res, err := a.Merge(a.HeadPath, a.BodyPath, a.Executable)
	if res != nil {
		printReport(res.Report)
	}
	return err
}

// RunReconcile reconciles an existing merged rig from the command line
func (a *App) RunReconcile(mergedPath string) error {
	if err := a.requireSources(); err != nil {
		return err
	}

	res, err := a.Reconcile(mergedPath, a.HeadPath, a.BodyPath)
	if res != nil {
		printReport(res.Report)
	}
	return err
}

// RunInspect prints a rig summary
func (a *App) RunInspect(path string) error {
	r, err := a.Importer.Import(path, rig.RoleMerged)
	if err != nil {
		return err
	}

	s := rig.Summarize(r)
	fmt.Printf("=== %s ===\n", s.Name)
	fmt.Printf("File: %s\n", path)
	if s.Asset != "" {
		fmt.Printf("Asset: %s\n", s.Asset)
	}
	fmt.Printf("Nodes: %d (%d humanoid bones)\n", s.Nodes, s.Bones)
	fmt.Printf("Meshes: %s\n", strings.Join(s.Meshes, ", "))
	fmt.Printf("Colliders: %d, bone chains: %d, rotation constraints: %d\n", s.Colliders, s.BoneChains, s.Constraints)
	fmt.Printf("Avatar descriptor: %v\n", s.HasDescriptor)
	fmt.Printf("Extent: %.3f x %.3f, total bone length %.3f\n", s.Width, s.Height, s.BoneLength)
	return nil
}

// RunPreview renders a skeleton preview to OutputFile
func (a *App) RunPreview(path string) error {
	r, err := a.Importer.Import(path, rig.RoleMerged)
	if err != nil {
		return err
	}

	out := a.OutputFile
	if out == "" {
		out = "preview.svg"
	}

	switch strings.ToLower(filepath.Ext(out)) {
	case ".png":
		if err := rig.NewRasterRenderer(r).SavePNG(out); err != nil {
			return err
		}
	case ".svg":
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating preview: %w", err)
		}
		defer f.Close()
		if err := rig.NewVectorRenderer(r).RenderToSVG(f); err != nil {
			return fmt.Errorf("rendering preview: %w", err)
		}
	default:
		return fmt.Errorf("unsupported preview format %q (use .svg or .png)", filepath.Ext(out))
	}

	fmt.Printf("Saved preview to %s\n", out)
	return nil
}

// RunInterchange writes the interchange file for the two sources
func (a *App) RunInterchange() error {
	if err := a.requireSources(); err != nil {
		return err
	}
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	p := rig.NewPipeline(config, nil, a.Importer)
	head, body, err := p.LoadSources(a.HeadPath, a.BodyPath)
	if err != nil {
		return err
	}
	path, err := p.WriteInterchange(head, body)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote interchange file to %s\n", path)
	return nil
}

// RunFindTool reports where the merge tool is and optionally starts it
func (a *App) RunFindTool() error {
	tool, err := a.mergeTool(a.Executable)
	if tool == nil {
		return err
	}
	if tool.Executable != "" {
		fmt.Printf("Merge tool: %s\n", tool.Executable)
	}
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		var cfgErr *rig.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Field == "executable" {
			return err
		}
	}

	if a.TestLaunch {
		return tool.TestLaunch()
	}
	return nil
}

// RunPanel serves the control panel until interrupted
func (a *App) RunPanel() error {
	fmt.Println("Starting headswap control panel...")

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.openHistory()
	a.StateTracker = rig.NewStateTrackerWithCache(filepath.Join(config.Paths.TempDir, "last-report.json"))

	mqttClient, err := rig.InitMQTT(config.MQTT, func(req rig.MergeRequest) {
		if _, err := a.Merge(req.Head, req.Body, ""); err != nil {
			log.Printf("[MERGE] Remote merge failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MQTT: %w", err)
	}
	if mqttClient != nil {
		a.MQTTClient = mqttClient
		a.Publisher = rig.NewPublisher(mqttClient.GetClient(), config.MQTT)
		fmt.Println("MQTT report publisher initialized")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", config.HTTP.Port),
		Handler: newHTTPServer(a),
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HTTP] Server error: %v", err)
		}
	}()

	fmt.Println("\nControl Panel Running")
	fmt.Println("=====================")
	fmt.Printf("\nHTTP endpoints (port %d):\n", config.HTTP.Port)
	fmt.Println("  GET  /             - Control panel")
	fmt.Println("  POST /merge        - Run a merge")
	fmt.Println("  GET  /report       - Last merge report")
	fmt.Println("  GET  /history      - Recent merges")
	fmt.Println("  GET  /preview.svg  - Skeleton preview of the last merged rig")
	fmt.Println("  GET  /preview.png  - Labelled raster preview")
	fmt.Println("  GET  /health       - Health check")
	if a.MQTTClient != nil {
		fmt.Printf("\nMQTT:\n  Requests: %s\n  Reports:  %s\n", a.MQTTClient.RequestTopic(), a.Publisher.Topic())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	_ = server.Shutdown(context.Background())
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	if a.History != nil {
		_ = a.History.Close()
	}
	fmt.Println("Stopped")
	return nil
}

func printReport(r *rig.MergeReport) {
	if r == nil {
		return
	}
	if !r.Succeeded() {
		fmt.Printf("Merge failed: %s\n", r.Error)
		if r.ExitCode != 0 {
			fmt.Printf("Exit code: %d\n", r.ExitCode)
		}
		return
	}
	fmt.Printf("Merged rig: %s\n", r.OutputPath)
	fmt.Printf("  colliders cloned:    %d\n", r.CollidersCloned)
	fmt.Printf("  constraints cloned:  %d\n", r.ConstraintsCloned)
	fmt.Printf("  bone chains cloned:  %d\n", r.ChainsCloned)
	fmt.Printf("  equivalents skipped: %d\n", r.EquivalentsSkipped)
	fmt.Printf("  references dropped:  %d\n", r.DroppedReferences)
	if len(r.SynthesizedNodes) > 0 {
		fmt.Printf("  created nodes:       %s\n", strings.Join(r.SynthesizedNodes, ", "))
	}
	if r.DiscardedNodes > 0 {
		fmt.Printf("  empty nodes removed: %d\n", r.DiscardedNodes)
	}
	fmt.Printf("  materials assigned:  %d\n", r.MaterialsAssigned)
	fmt.Printf("  blendshapes copied:  %d\n", r.BlendshapesCopied)
	if r.ProbeAnchor != "" {
		fmt.Printf("  probe anchor:        %s\n", r.ProbeAnchor)
	}
	fmt.Printf("  took %.2fs\n", r.Duration)
}
