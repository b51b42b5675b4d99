package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"

	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	atlastt "github.com/icesat2-gsp/atlas-timetag"
	"github.com/icesat2-gsp/atlas-timetag/decode"
	"github.com/icesat2-gsp/atlas-timetag/encode"
	"github.com/icesat2-gsp/atlas-timetag/search"
)

// pceFromName recovers a segment source's PCE from its basename, following
// the "<run>_pce<N>.tt" naming convention (§6 "Segment input").
var pceNamePattern = regexp.MustCompile(`(?i)pce([1-3])`)

func pceFromName(name string) (atlastt.PCE, bool) {
	m := pceNamePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return atlastt.PCE(n), true
}

// spotIndex maps a time-tag HistogramType to its strong/weak writer slot.
// Only HistStrongTimeTag/HistWeakTimeTag are ever emitted by the
// integrator, so anything else defaults to the strong slot.
func spotIndex(t atlastt.HistogramType) int {
	if t == atlastt.HistWeakTimeTag {
		return 1
	}
	return 0
}

func loadConfig(configPath string) (atlastt.Config, error) {
	if configPath == "" {
		return atlastt.DefaultConfig(), nil
	}
	f, err := os.Open(configPath)
	if err != nil {
		return atlastt.Config{}, err
	}
	defer f.Close()
	return atlastt.LoadConfig(f)
}

// runPCE drains one segment source through an integrator and consumes every
// emitted Histogram on the writer/archive side (§5: one producer per PCE,
// one consumer). It returns once the source is exhausted or ctx is done.
func runPCE(
	ctx context.Context,
	pce atlastt.PCE,
	src *atlastt.SegmentSource,
	cfg atlastt.Config,
	cache *atlastt.MajorFrameCache,
	correlator *atlastt.Correlator,
	granule *atlastt.GranuleHistogram,
	archive *atlastt.Archive,
	outdir string,
) (*atlastt.RunSummary, error) {
	integrator := atlastt.NewIntegrator(pce, cfg, cache, correlator, granule, 64)
	summary := atlastt.NewRunSummary(pce)

	writers := [2]*encode.Writer{
		encode.NewWriter(filepath.Join(outdir, fmt.Sprintf("pce%d-strong.csv", pce))),
		encode.NewWriter(filepath.Join(outdir, fmt.Sprintf("pce%d-weak.csv", pce))),
	}

	done := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				integrator.Cancel()
				done <- nil
				return
			default:
			}

			seg, err := decode.ReadFrame(src)
			if err != nil {
				if errors.Is(err, io.EOF) {
					done <- nil
					return
				}
				done <- err
				return
			}
			integrator.Process(seg)
		}
	}()

	for {
		select {
		case h, ok := <-integrator.Emitted():
			if !ok {
				continue
			}
			writers[spotIndex(h.Type)].Write(encode.BuildRow(h))
			if archive != nil {
				archive.AddHistogram(h)
			}
			summary.Update(h)
		case err := <-done:
			// Drain whatever is left buffered in the emission queue before
			// reporting completion (Cancel already flushed the partial
			// period synchronously).
			for {
				select {
				case h, ok := <-integrator.Emitted():
					if !ok {
						return summary, err
					}
					writers[spotIndex(h.Type)].Write(encode.BuildRow(h))
					if archive != nil {
						archive.AddHistogram(h)
					}
					summary.Update(h)
				default:
					return summary, err
				}
			}
		}
	}
}

// runCommand implements the `run` subcommand: discover per-PCE segment
// sources under uri and drain each one in turn through its own integrator
// and CSV writers (see runPCE).
func runCommand(cCtx *cli.Context) error {
	return runDirectory(
		cCtx.String("uri"),
		cCtx.String("config-uri"),
		cCtx.String("outdir-uri"),
		cCtx.String("atlas-config"),
		cCtx.Bool("in-memory"),
		cCtx.Bool("archive"),
	)
}

// runDirectory does the actual work behind `run`, independent of the CLI
// layer so that run-trawl can invoke it once per discovered run directory
// from inside a worker-pool task.
func runDirectory(uri, configURI, outdirURI, atlasConfigPath string, inMemory, archiveEnabled bool) error {
	cfg, err := loadConfig(atlasConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sources := []string{uri}
	if fi, err := os.Stat(uri); err == nil && fi.IsDir() {
		sources = search.FindSegmentSources(uri, configURI)
	}
	if len(sources) == 0 {
		return atlastt.ErrNoSegmentSources
	}
	log.Println("atlastt: discovered segment sources:", len(sources))

	if outdirURI == "" {
		outdirURI = filepath.Dir(sources[0])
	}

	cache := atlastt.NewMajorFrameCache()
	correlator := atlastt.NewCorrelator(cfg.TrueRulerClkPeriod)
	granule := atlastt.NewGranuleHistogram()

	var archive *atlastt.Archive
	if archiveEnabled {
		archive, err = atlastt.NewArchive(configURI)
		if err != nil {
			return err
		}
		defer archive.Close()
	}

	for _, name := range sources {
		pce, ok := pceFromName(name)
		if !ok {
			log.Printf("atlastt: skipping %s: could not determine PCE from filename", name)
			continue
		}

		src, err := atlastt.OpenSegmentSource(name, configURI, inMemory)
		if err != nil {
			return err
		}

		log.Println("atlastt: processing PCE", pce, "from", name)
		summary, err := runPCE(ctx, pce, src, cfg, cache, correlator, granule, archive, outdirURI)
		src.Close()
		if err != nil {
			return err
		}

		if _, err := atlastt.WriteJSON(filepath.Join(outdirURI, fmt.Sprintf("pce%d-summary.json", pce)), configURI, summary); err != nil {
			return err
		}
	}

	if archive != nil {
		if err := archive.FlushHistograms(outdirURI); err != nil {
			return err
		}
		if err := archive.FlushCorrelator(outdirURI); err != nil {
			return err
		}
	}

	return nil
}

// runTrawlCommand implements a multi-run variant of `run`: uri names a
// directory of independent run subdirectories, each processed by one
// worker in a fixed pool of 2*NumCPU, mirroring the teacher's
// convert/convert-trawl command pair.
func runTrawlCommand(cCtx *cli.Context) error {
	uri := cCtx.String("uri")
	configURI := cCtx.String("config-uri")
	outdirURI := cCtx.String("outdir-uri")
	atlasConfigPath := cCtx.String("atlas-config")
	inMemory := cCtx.Bool("in-memory")
	archiveEnabled := cCtx.Bool("archive")

	entries, err := os.ReadDir(uri)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(uri, e.Name())
		runOutdir := outdirURI
		if runOutdir != "" {
			runOutdir = filepath.Join(outdirURI, e.Name())
		}
		pool.Submit(func() {
			if err := runDirectory(runDir, configURI, runOutdir, atlasConfigPath, inMemory, archiveEnabled); err != nil {
				log.Printf("atlastt: run %s failed: %v", runDir, err)
			}
		})
	}

	return nil
}

// replayCommand implements `replay`: it checks that --archive-uri is set,
// logs the archive and output locations, and returns an error. It does not
// read the archive and writes no CSV.
func replayCommand(cCtx *cli.Context) error {
	archiveURI := cCtx.String("archive-uri")
	if archiveURI == "" {
		return errors.New("replay: --archive-uri is required")
	}
	outdirURI := cCtx.String("outdir-uri")
	if outdirURI == "" {
		outdirURI = archiveURI
	}

	log.Println("atlastt: replaying archived histograms from", archiveURI, "into", outdirURI)
	return errors.New("replay: archive columnar readback not yet implemented")
}

func main() {
	app := &cli.App{
		Name:  "atlastt",
		Usage: "ATLAS laser-altimeter time-tag integration core",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "integrate a run's segment-stream files into per-PCE histogram CSVs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to a segment-stream file or a run directory."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
					&cli.StringFlag{Name: "outdir-uri", Usage: "URI or pathname to an output directory."},
					&cli.StringFlag{Name: "atlas-config", Usage: "Pathname to a key=value integrator configuration file."},
					&cli.BoolFlag{Name: "in-memory", Usage: "Read each segment source fully into memory before processing."},
					&cli.BoolFlag{Name: "archive", Usage: "Mirror emitted histograms into a TileDB archive (no correlator snapshots are recorded)."},
				},
				Action: runCommand,
			},
			{
				Name:  "run-trawl",
				Usage: "run against every run subdirectory under uri, using a fixed worker pool",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to a directory of run subdirectories."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
					&cli.StringFlag{Name: "outdir-uri", Usage: "URI or pathname to an output directory."},
					&cli.StringFlag{Name: "atlas-config", Usage: "Pathname to a key=value integrator configuration file."},
					&cli.BoolFlag{Name: "in-memory", Usage: "Read each segment source fully into memory before processing."},
					&cli.BoolFlag{Name: "archive", Usage: "Mirror emitted histograms into a TileDB archive (no correlator snapshots are recorded)."},
				},
				Action: runTrawlCommand,
			},
			{
				Name:  "replay",
				Usage: "check the archive arguments and report that archive readback is unavailable (no CSV is written)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "archive-uri", Usage: "URI or pathname to a TileDB archive directory written by `run --archive`."},
					&cli.StringFlag{Name: "outdir-uri", Usage: "URI or pathname to an output directory."},
				},
				Action: replayCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
