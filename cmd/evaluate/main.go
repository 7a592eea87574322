// Command evaluate computes COCO or PASCAL VOC detection metrics for a set of
// ground-truth and detection box files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/nvr-ai/go-ml-eval/classes"
	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/nvr-ai/go-ml-eval/interpolation"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/nvr-ai/go-ml-eval/util"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the resolved command configuration. Values come from flags, then
// EVAL_* environment variables, then the optional config file.
type Config struct {
	GroundTruth string  `mapstructure:"gt"`
	Detections  string  `mapstructure:"det"`
	Metric      string  `mapstructure:"metric"`
	Threshold   float64 `mapstructure:"threshold"`
	Weighted    bool    `mapstructure:"weighted"`
	Weighting   string  `mapstructure:"weighting"`
	Names       string  `mapstructure:"names"`
	Workers     int     `mapstructure:"workers"`
	JSON        bool    `mapstructure:"json"`
	Verbose     bool    `mapstructure:"verbose"`
	Profile     bool    `mapstructure:"profile"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "evaluate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = logger.Sync() }()

	method, err := interpolation.ParseMethod(cfg.Metric)
	if err != nil {
		return err
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return errors.Errorf("threshold %v must be in (0, 1]", cfg.Threshold)
	}
	if cfg.GroundTruth == "" || cfg.Detections == "" {
		return errors.New("both --gt and --det are required")
	}
	weighting, err := evaluation.ParseWeighting(cfg.Weighting)
	if err != nil {
		return err
	}
	if cfg.Weighted {
		weighting = evaluation.ByGroundTruth
	}

	prof := profiler.New()
	if cfg.Profile {
		defer prof.Report(logger)
	}

	done := prof.StartOperation("load")
	truth, err := util.Load(cfg.GroundTruth, boxes.GroundTruth)
	if err != nil {
		return errors.WithMessage(err, "ground truth")
	}
	dets, err := util.Load(cfg.Detections, boxes.Detected)
	if err != nil {
		return errors.WithMessage(err, "detections")
	}
	done()
	prof.RecordMetric("ground_truth_boxes", float64(len(truth)))
	prof.RecordMetric("detected_boxes", float64(len(dets)))

	if cfg.Names != "" {
		done = prof.StartOperation("relabel")
		set, err := classes.DefaultManager().Resolve(cfg.Names)
		if err != nil {
			return err
		}
		if truth, err = set.Relabel(truth); err != nil {
			return errors.WithMessage(err, "ground truth")
		}
		if dets, err = set.Relabel(dets); err != nil {
			return errors.WithMessage(err, "detections")
		}
		done()
	}

	logger.Info("loaded boxes",
		zap.Int("ground_truth", len(truth)),
		zap.Int("detections", len(dets)),
		zap.String("metric", method.String()),
		zap.Float64("threshold", cfg.Threshold))
	fmt.Fprintf(stdout, "ground truth boxes: %d\ndetected boxes: %d\n\n", len(truth), len(dets))

	if method == interpolation.COCO101 {
		if weighting != evaluation.Unweighted {
			logger.Warn("class weighting has no effect on COCO metrics")
		}
		done = prof.StartOperation("evaluate")
		summary, err := evaluation.EvaluateCOCO(truth, dets, evaluation.COCOOptions{
			IoUThreshold: cfg.Threshold,
			Workers:      cfg.Workers,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		done()
		prof.RecordMetric("classes", float64(len(summary.Classes)))
		if cfg.JSON {
			return writeJSON(stdout, summary)
		}
		printCOCO(stdout, summary)
		return nil
	}

	done = prof.StartOperation("evaluate")
	summary, err := evaluation.EvaluateVOC(truth, dets, evaluation.VOCOptions{
		IoUThreshold: cfg.Threshold,
		Method:       method,
		Weighting:    weighting,
		Workers:      cfg.Workers,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	done()
	prof.RecordMetric("classes", float64(len(summary.Classes)))
	if cfg.JSON {
		return writeJSON(stdout, summary)
	}
	printVOC(stdout, summary)
	return nil
}

func loadConfig(args []string) (Config, error) {
	fs := pflag.NewFlagSet("evaluate", pflag.ContinueOnError)
	fs.String("gt", "", "ground-truth JSON file or directory")
	fs.String("det", "", "detection JSON file or directory")
	fs.StringP("metric", "m", "coco", "coco | voc2007 | voc2012 | auc")
	fs.Float64P("threshold", "t", 0.5, "IoU threshold in (0, 1]")
	fs.String("weighting", "none", "VOC mAP class weighting: none | gt")
	fs.Bool("weighted", false, "shorthand for --weighting gt")
	fs.String("names", "", "class names: coco, voc or a names file with one name per line")
	fs.Int("workers", 0, "parallel classes, 0 uses every CPU")
	fs.Bool("json", false, "print the summary as JSON")
	fs.BoolP("verbose", "v", false, "development logging at debug level")
	fs.Bool("profile", false, "log stage timings and memory use")
	configFile := fs.StringP("config", "c", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("EVAL")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, errors.Wrap(err, "bind flags")
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", *configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode summary")
}

func format(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

func printCOCO(w io.Writer, s *evaluation.COCOSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COCO METRIC\tVALUE")
	for _, stat := range s.Stats() {
		fmt.Fprintf(tw, "%s\t%s\n", stat.Label, format(stat.Value))
	}
	tw.Flush()

	fmt.Fprintln(w)
	printClasses(w, s.Classes, s.PerClass)
}

func printVOC(w io.Writer, s *evaluation.VOCSummary) {
	printClasses(w, s.Classes, s.PerClass)
	fmt.Fprintf(w, "\nmAP (%s): %s\n", s.Weighting, format(s.MAP))
}

func printClasses(w io.Writer, names []string, metrics map[string]evaluation.ClassMetric) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tAP\tGT\tTP\tFP")
	for _, name := range sorted {
		m := metrics[name]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", name, format(m.AP), m.TotalPositives, m.TotalTP, m.TotalFP)
	}
	tw.Flush()

	var absent []string
	for _, name := range sorted {
		if metrics[name].AP == nil {
			absent = append(absent, name)
		}
	}
	if len(absent) > 0 {
		fmt.Fprintf(w, "warning: no ground truth for %s; AP is undefined\n", strings.Join(absent, ", "))
	}
}
