package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/headswap/rig"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile  string
	HeadPath    string
	BodyPath    string
	Executable  string
	OutputFile  string
	HttpPort    int
	Merge       bool
	Reconcile   string
	Inspect     string
	Preview     string
	Interchange bool
	Panel       bool
	FindTool    bool
	TestLaunch  bool
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunMerge() error
	RunReconcile(mergedPath string) error
	RunInspect(path string) error
	RunPreview(path string) error
	RunInterchange() error
	RunFindTool() error
	RunPanel() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("headswap", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", rig.DefaultConfigFile, "Path to configuration file")
	fs.StringVar(&opts.HeadPath, "head", "", "Head rig document or asset")
	fs.StringVar(&opts.BodyPath, "body", "", "Body rig document or asset")
	fs.StringVar(&opts.Executable, "executable", "", "Merge tool executable (default: blender on PATH)")
	fs.StringVar(&opts.OutputFile, "output", "preview.svg", "Output file for --preview (.svg or .png)")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "Control panel port (default from config)")
	fs.BoolVar(&opts.Merge, "merge", false, "Run the full merge pipeline and exit")
	fs.StringVar(&opts.Reconcile, "reconcile", "", "Reconcile an existing merged rig document without running the merge tool")
	fs.StringVar(&opts.Inspect, "inspect", "", "Print a summary of a rig document")
	fs.StringVar(&opts.Preview, "preview", "", "Render a skeleton preview of a rig document")
	fs.BoolVar(&opts.Interchange, "interchange", false, "Write the interchange file for --head and --body and exit")
	fs.BoolVar(&opts.Panel, "panel", false, "Serve the HTTP control panel")
	fs.BoolVar(&opts.FindTool, "find-tool", false, "Locate the merge tool and exit")
	fs.BoolVar(&opts.TestLaunch, "test-launch", false, "With --find-tool, start the located executable")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "headswap version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.FindTool:
		return app.RunFindTool()
	case opts.Inspect != "":
		return app.RunInspect(opts.Inspect)
	case opts.Preview != "":
		return app.RunPreview(opts.Preview)
	case opts.Interchange:
		return app.RunInterchange()
	case opts.Reconcile != "":
		return app.RunReconcile(opts.Reconcile)
	case opts.Merge:
		return app.RunMerge()
	case opts.Panel:
		return app.RunPanel()
	}

	fmt.Fprintln(out, "Use --merge --head HEAD --body BODY to run the full merge")
	fmt.Fprintln(out, "Use --reconcile MERGED --head HEAD --body BODY to reconcile an existing merged rig")
	fmt.Fprintln(out, "Use --inspect RIG to print a rig summary")
	fmt.Fprintln(out, "Use --preview RIG --output FILE to render a skeleton preview")
	fmt.Fprintln(out, "Use --interchange --head HEAD --body BODY to write the interchange file")
	fmt.Fprintln(out, "Use --find-tool [--test-launch] to locate the merge tool")
	fmt.Fprintln(out, "Use --panel to serve the control panel")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintf(out, "  %s - merge tool, paths, MQTT and HTTP settings\n", rig.DefaultConfigFile)
	return nil
}
