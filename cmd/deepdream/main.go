package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfluke/deepdream/dream"
	"github.com/openfluke/deepdream/gpu"
	"github.com/openfluke/deepdream/imageio"
	"github.com/openfluke/deepdream/nn"
)

// options holds everything the command line can set
type options struct {
	input       string
	output      string
	configPath  string
	arch        string
	weights     string
	size        int
	useGPU      bool
	saveOctaves bool
	outDir      string
	verbose     bool
	observeURL  string
	observeWait time.Duration
	listLayers  bool

	cfg dream.RunConfig
}

// parseFlags reads args on top of the defaults, or of -config when given.
// Flags that were set explicitly always win over the config file.
func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("deepdream", flag.ContinueOnError)
	opts := &options{}
	def := dream.DefaultRunConfig()

	fs.StringVar(&opts.input, "input", "", "Input image (empty: start from noise)")
	fs.StringVar(&opts.output, "output", "dream.png", "Output image (.png, .jpg or .bmp)")
	fs.StringVar(&opts.configPath, "config", "", "JSON run config")
	fs.StringVar(&opts.arch, "arch", "vgg19", "Backbone ("+strings.Join(nn.ListArchitectures(), ", ")+") or a JSON architecture file")
	fs.StringVar(&opts.weights, "weights", "", "Safetensors weights with torchvision names (features.N.weight)")
	fs.IntVar(&opts.size, "size", 600, "Rescale the input so its longer side is this many pixels (0 keeps it)")
	fs.BoolVar(&opts.useGPU, "gpu", false, "Run conv layers on WebGPU")
	fs.BoolVar(&opts.saveOctaves, "save-octaves", false, "Write every octave into a timestamped directory under -out-dir")
	fs.StringVar(&opts.outDir, "out-dir", "outputs", "Root for -save-octaves")
	fs.BoolVar(&opts.verbose, "v", false, "Print every iteration")
	fs.StringVar(&opts.observeURL, "observe-url", "", "POST progress events as JSON to this URL")
	fs.DurationVar(&opts.observeWait, "observe-timeout", 100*time.Millisecond, "Timeout per progress POST")
	fs.BoolVar(&opts.listLayers, "list-layers", false, "Print the backbone's layer names and exit")

	layers := fs.String("layers", strings.Join(def.Layers, ","), "Comma-separated layers to excite")
	octaves := fs.Int("octaves", def.Octaves, "Number of octaves")
	scale := fs.Float64("scale", def.OctaveScale, "Size ratio between octaves")
	iters := fs.Int("iters", def.Iterations, "Iterations per octave")
	lr := fs.Float64("lr", def.LearningRate, "Learning rate")
	jitter := fs.Int("jitter", def.JitterMax, "Max jitter in pixels")
	smooth := fs.Bool("smooth", def.Smoothing, "Smooth gradients with a cascade Gaussian")
	sigma := fs.Float64("sigma", def.SmoothingSigma, "Base smoothing sigma")
	objective := fs.String("objective", string(def.Objective), "Layer objective: mean or sum")
	seed := fs.Int64("seed", def.Seed, "Random seed for jitter, noise and random weights")
	timeout := fs.Duration("timeout", 0, "Stop after this long and keep the best image (0: no limit)")
	maxIters := fs.Int("max-iters", 0, "Stop after this many updates in total (0: no limit)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.cfg = def
	if opts.configPath != "" {
		cfg, err := dream.LoadRunConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		opts.cfg = cfg
	}

	fs.Visit(func(f *flag.Flag) {
		c := &opts.cfg
		switch f.Name {
		case "layers":
			c.Layers = splitLayers(*layers)
		case "octaves":
			c.Octaves = *octaves
		case "scale":
			c.OctaveScale = *scale
		case "iters":
			c.Iterations = *iters
		case "lr":
			c.LearningRate = *lr
		case "jitter":
			c.JitterMax = *jitter
		case "smooth":
			c.Smoothing = *smooth
		case "sigma":
			c.SmoothingSigma = *sigma
		case "objective":
			c.Objective = dream.ObjectiveMode(*objective)
		case "seed":
			c.Seed = *seed
		case "timeout":
			c.Budget.MaxDuration = *timeout
		case "max-iters":
			c.Budget.MaxIterations = *maxIters
		}
	})
	return opts, nil
}

func splitLayers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadNetwork builds the backbone and loads its weights; without weights it warns and keeps random init
func loadNetwork(opts *options) (*nn.Network, error) {
	var network *nn.Network
	var err error
	if strings.HasSuffix(opts.arch, ".json") {
		network, err = nn.BuildNetworkFromFile(opts.arch)
	} else {
		network, err = nn.BuildArchitecture(opts.arch, rand.New(rand.NewSource(opts.cfg.Seed)))
	}
	if err != nil {
		return nil, &dream.ConfigError{Field: "arch", Err: err}
	}
	if opts.weights == "" {
		log.Printf("⚠️  No -weights given: %s runs with random weights", opts.arch)
		return network, nil
	}
	if err := network.LoadWeightsFile(opts.weights); err != nil {
		return nil, &dream.ResourceError{Resource: "weights " + opts.weights, Err: err}
	}
	fmt.Printf("✓ Loaded %s weights from %s\n", opts.arch, opts.weights)
	return network, nil
}

func loadInput(opts *options) (*dream.Image, error) {
	if opts.input == "" {
		side := opts.size
		if side <= 0 {
			side = 600
		}
		fmt.Printf("✓ Starting from %dx%d noise\n", side, side)
		return imageio.NoiseImage(side, side, 3, opts.cfg.Seed), nil
	}
	img, err := imageio.LoadImage(opts.input, opts.size)
	if err != nil {
		return nil, &dream.ResourceError{Resource: "input " + opts.input, Err: err}
	}
	fmt.Printf("✓ Loaded %s (%dx%d, %d channels)\n", opts.input, img.Width, img.Height, img.Channels)
	return img, nil
}

func run(ctx context.Context, opts *options) error {
	network, err := loadNetwork(opts)
	if err != nil {
		return err
	}
	if opts.listLayers {
		for _, info := range network.Registry().Layers() {
			fmt.Printf("%3d  %-10s %s\n", info.Index, info.Name, info.Type)
		}
		return nil
	}

	if opts.useGPU {
		gctx, err := gpu.NewContext()
		if err != nil {
			return &dream.ResourceError{Resource: "gpu", Err: err}
		}
		defer gctx.Release()
		if err := network.UseGPU(gctx); err != nil {
			return &dream.ResourceError{Resource: "gpu", Err: err}
		}
		defer network.ReleaseGPU()
		fmt.Printf("✓ GPU: %s\n", gctx.Report())
	}

	img, err := loadInput(opts)
	if err != nil {
		return err
	}

	dreamOpts := []dream.Option{dream.WithObserver(&dream.ConsoleObserver{Verbose: opts.verbose})}
	if opts.observeURL != "" {
		httpObserver := dream.NewHTTPObserver(opts.observeURL, opts.observeWait)
		defer httpObserver.Close()
		dreamOpts = append(dreamOpts, dream.WithObserver(httpObserver))
	}
	dreamer, err := dream.NewDreamer(dream.NewNetworkExtractor(network), opts.cfg, dreamOpts...)
	if err != nil {
		return err
	}

	cfg := dreamer.Config()
	fmt.Printf("\n🌀 Dreaming on %s: layers=%v octaves=%d scale=%.2f iters=%d lr=%.3f\n\n",
		network.Name, cfg.Layers, cfg.Octaves, cfg.OctaveScale, cfg.Iterations, cfg.LearningRate)

	start := time.Now()
	var result *dream.Result
	if opts.saveOctaves {
		result, err = runWithSnapshots(ctx, dreamer, img, opts)
	} else {
		result, err = dreamer.Generate(ctx, img)
	}
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		log.Printf("⚠️  %v", w)
	}
	if err := imageio.SaveImage(opts.output, result.Image, 0); err != nil {
		return &dream.ResourceError{Resource: "output " + opts.output, Err: err}
	}
	fmt.Printf("\n✓ %s after %d octaves, %d iterations in %v: objective=%.5f\n",
		result.Status, result.Octaves, result.Iterations, time.Since(start).Round(time.Millisecond), result.Objective)
	fmt.Printf("✓ Saved %s\n", opts.output)
	return nil
}

// runWithSnapshots writes each octave to disk as it finishes
func runWithSnapshots(ctx context.Context, dreamer *dream.Dreamer, img *dream.Image, opts *options) (*dream.Result, error) {
	dir, err := imageio.RunDir(opts.outDir, time.Now())
	if err != nil {
		return nil, &dream.ResourceError{Resource: "output directory", Err: err}
	}
	if err := dream.SaveRunConfig(filepath.Join(dir, "config.json"), dreamer.Config()); err != nil {
		return nil, &dream.ResourceError{Resource: "output directory", Err: err}
	}

	result := &dream.Result{}
	for snap, err := range dreamer.Snapshots(ctx, img) {
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("octave_%02d_%dx%d.png", snap.Octave.Index, snap.Image.Width, snap.Image.Height)
		if snap.Status != dream.StatusCompleted {
			name = fmt.Sprintf("partial_%s.png", strings.ReplaceAll(snap.Status.String(), " ", "_"))
		}
		if err := imageio.SaveImage(filepath.Join(dir, name), snap.Image, 0); err != nil {
			return nil, &dream.ResourceError{Resource: "snapshot", Err: err}
		}
		fmt.Printf("   saved %s\n", name)

		result.Image = snap.Image
		result.Status = snap.Status
		result.Iterations = snap.Iterations
		result.Objective = snap.Objective
		if snap.Warning != nil {
			result.Warnings = append(result.Warnings, snap.Warning)
		}
		if snap.Status == dream.StatusCompleted {
			result.Octaves++
		}
	}
	fmt.Printf("✓ Octaves written to %s\n", dir)
	return result, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	fmt.Printf("🌀 deepdream (%s)\n", opts.arch)
	fmt.Printf("=================\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = run(ctx, opts)
	stop()
	if err != nil {
		log.Printf("❌ %v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates bad input (2) from missing resources (3)
func exitCode(err error) int {
	switch {
	case errors.Is(err, dream.ErrConfig):
		return 2
	case errors.Is(err, dream.ErrResource):
		return 3
	default:
		return 1
	}
}
