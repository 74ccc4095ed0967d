// Package main provides the dagnet CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/graph"
	"github.com/born-ml/dagnet/internal/nn"
	"github.com/born-ml/dagnet/internal/serialization"
	"github.com/born-ml/dagnet/internal/tokenizer"
)

const version = "v0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "dagnet: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "dagnet %s\n", version)
		return nil
	case "summary":
		return runSummary(args[1:], out)
	case "train-text":
		return runTrainText(ctx, args[1:], out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "dagnet - computation graph training")
	fmt.Fprintf(out, "Version: %s\n\n", version)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  version      Show version")
	fmt.Fprintln(out, "  summary      Print the vertex table of a graph configuration")
	fmt.Fprintln(out, "  train-text   Train a recurrent graph on next-token prediction")
}

func newLogger(out io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func runSummary(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(out)
	confPath := fs.String("config", "", "Graph configuration file (.yaml or .json)")
	snapshot := fs.String("snapshot", "", "Summarize a saved .dagn snapshot instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var g *graph.Graph
	switch {
	case *snapshot != "":
		var err error
		g, err = serialization.Load(*snapshot, nn.NewFactory(), false)
		if err != nil {
			return err
		}
	case *confPath != "":
		conf, err := config.Load(*confPath)
		if err != nil {
			return err
		}
		g, err = graph.New(conf, nn.NewFactory(), graph.Options{Logger: newLogger(io.Discard, false)})
		if err != nil {
			return err
		}
		if err := g.Init(nil, false); err != nil {
			return err
		}
	default:
		fs.Usage()
		return errors.New("summary: -config or -snapshot is required")
	}

	fmt.Fprint(out, g.Summary())
	return nil
}

func runTrainText(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("train-text", flag.ContinueOnError)
	fs.SetOutput(out)
	confPath := fs.String("config", "", "Graph configuration file (.yaml or .json)")
	textPath := fs.String("text", "", "Training text file")
	tokName := fs.String("tokenizer", tokenizer.CharName, "Tokenizer: char or a tiktoken encoding such as cl100k_base")
	seqLen := fs.Int("seq", 50, "Sequence length per example")
	batchSize := fs.Int("batch", 16, "Minibatch size")
	epochs := fs.Int("epochs", 1, "Number of training epochs")
	seed := fs.Int64("seed", 0, "Shuffle seed (0 keeps text order)")
	lr := fs.Float64("lr", 0, "Override the configured learning rate")
	logEvery := fs.Int("log-every", 10, "Log the score every N iterations")
	savePath := fs.String("save", "", "Write a .dagn snapshot after training")
	saveUpdater := fs.Bool("save-updater", true, "Include the updater state in the snapshot")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *confPath == "" || *textPath == "" {
		fs.Usage()
		return errors.New("train-text: -config and -text are required")
	}

	logger := newLogger(out, *verbose)

	conf, err := config.Load(*confPath)
	if err != nil {
		return err
	}
	//nolint:gosec // G304: text path comes from the command line
	raw, err := os.ReadFile(*textPath)
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	text := string(raw)

	tok, err := tokenizer.New(*tokName, text)
	if err != nil {
		return err
	}
	iter, err := data.NewTextIterator(tok, text, data.TextOptions{
		SeqLen:    *seqLen,
		BatchSize: *batchSize,
		Seed:      *seed,
	})
	if err != nil {
		return err
	}
	if err := checkVocab(conf, iter.VocabSize()); err != nil {
		return err
	}
	logger.Info("text loaded",
		"tokenizer", tok.Name(), "vocab", iter.VocabSize(), "sequences", iter.NumExamples())

	g, err := graph.New(conf, nn.NewFactory(), graph.Options{Logger: logger})
	if err != nil {
		return err
	}
	if err := g.Init(nil, false); err != nil {
		return err
	}
	if *lr > 0 {
		g.SetLearningRate(*lr)
	}
	g.SetListeners(graph.ScoreListener{Frequency: *logEvery})
	logger.Debug("graph ready", "params", g.NumParams(), "backprop", conf.BackpropType)

	if err := g.FitIterator(ctx, iter, *epochs); err != nil {
		return err
	}
	logger.Info("training done", "iterations", g.Iteration(), "epochs", g.Epoch(), "score", g.Score())

	if *savePath != "" {
		if err := serialization.Save(*savePath, g, *saveUpdater); err != nil {
			return err
		}
		logger.Info("snapshot written", "path", *savePath)
	}
	return nil
}

// checkVocab requires every vertex fed by a network input to take vocab
// features and every output vertex to produce vocab features.
func checkVocab(conf *config.GraphConfig, vocab int) error {
	inputs := make(map[string]bool, len(conf.Inputs))
	for _, in := range conf.Inputs {
		inputs[in] = true
	}
	outputs := make(map[string]bool, len(conf.Outputs))
	for _, o := range conf.Outputs {
		outputs[o] = true
	}
	for _, v := range conf.Vertices {
		for _, in := range v.Inputs {
			if inputs[in] && v.NIn != 0 && v.NIn != vocab {
				return fmt.Errorf("vertex %q takes %d inputs but the text has %d distinct tokens", v.Name, v.NIn, vocab)
			}
		}
		if outputs[v.Name] && v.NOut != 0 && v.NOut != vocab {
			return fmt.Errorf("output %q produces %d features but the text has %d distinct tokens", v.Name, v.NOut, vocab)
		}
	}
	return nil
}
