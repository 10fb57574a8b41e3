package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/geo"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

const defaultModelPoints = 200

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings      `yaml:"settings" json:"settings"`
	Input     InputConfig   `yaml:"input" json:"input"`
	Reference geo.Point     `yaml:"reference" json:"reference"`
	Search    SearchConfig  `yaml:"search" json:"search"`
	Binning   BinningConfig `yaml:"binning" json:"binning"`
	Output    OutputConfig  `yaml:"output" json:"output"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" json:"logLevel"`
	Verbose  bool   `yaml:"-" json:"-"`
}

// InputConfig names the packet logs
type InputConfig struct {
	TxFile     string `yaml:"txFile" json:"txFile"`
	RxFile     string `yaml:"rxFile" json:"rxFile"`
	HeaderRows int    `yaml:"headerRows" json:"headerRows"`
}

// SearchConfig represents the channel model search settings
type SearchConfig struct {
	Grid    pathloss.Grid `yaml:",inline" json:"grid"`
	Workers int           `yaml:"workers" json:"workers"` // 0 uses every CPU
}

// BinningConfig represents the distance binning settings
type BinningConfig struct {
	Width float64 `yaml:"width" json:"width"` // meters
}

// OutputConfig represents the destinations of the results
type OutputConfig struct {
	Directory   string      `yaml:"directory" json:"directory"`
	Format      ImageFormat `yaml:"format" json:"format"`
	Width       int         `yaml:"width" json:"width"`             // Chart width in pixels
	Height      int         `yaml:"height" json:"height"`           // Chart height in pixels
	ModelPoints int         `yaml:"modelPoints" json:"modelPoints"` // Samples of the model curve
	Export      bool        `yaml:"export" json:"export"`           // Write records.csv and bins.csv
	Database    string      `yaml:"database" json:"database"`       // Optional SQLite database
	MetricsFile string      `yaml:"metricsFile" json:"metricsFile"` // Optional Prometheus textfile
}

func NewConfig() *Config {
	return &Config{
		Settings:  Settings{LogLevel: "info"},
		Reference: packet.DefaultReference,
		Search:    SearchConfig{Grid: pathloss.DefaultGrid()},
		Binning:   BinningConfig{Width: binning.DefaultWidth},
		Output: OutputConfig{
			Directory:   ".",
			Format:      ImagePNG,
			ModelPoints: defaultModelPoints,
			Export:      true,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := NewConfig()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding '%s': %w", path, err)
	}
	return c, nil
}

func NewConfigFromCLI() (*Config, error) {
	c, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	var configPath, txFile, rxFile, outDir, imageFormat string
	var verbose bool
	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.StringVar(&txFile, "tx", "", "Path to the transmitter packet log")
	fs.StringVar(&rxFile, "rx", "", "Path to the gateway packet log")
	fs.StringVar(&outDir, "o", "", "Output directory")
	fs.StringVar(&imageFormat, "f", "", "Output image format. [png, jpeg]")
	fs.BoolVar(&verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := NewConfig()
	if configPath != "" {
		var err error
		if c, err = LoadConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tx":
			c.Input.TxFile = txFile
		case "rx":
			c.Input.RxFile = rxFile
		case "o":
			c.Output.Directory = outDir
		case "f":
			c.Output.Format = ImageFormat(imageFormat)
		}
	})
	c.Output.Format = ImageFormat(strings.ToLower(string(c.Output.Format)))
	c.Settings.Verbose = verbose

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Level returns the configured log level, or debug when verbose.
func (c *Config) Level() (slog.Level, error) {
	if c.Settings.Verbose {
		return slog.LevelDebug, nil
	}

	var level slog.Level
	if c.Settings.LogLevel == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level: %s", c.Settings.LogLevel)
	}
	return level, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	switch {
	case c.Input.TxFile == "":
		return errors.New("tx file is required")
	case c.Input.RxFile == "":
		return errors.New("rx file is required")
	case c.Input.HeaderRows < 0:
		return fmt.Errorf("header rows must not be negative, got %d", c.Input.HeaderRows)
	case c.Reference.Latitude < -90 || c.Reference.Latitude > 90:
		return fmt.Errorf("reference latitude out of range: %v", c.Reference.Latitude)
	case c.Reference.Longitude < -180 || c.Reference.Longitude > 180:
		return fmt.Errorf("reference longitude out of range: %v", c.Reference.Longitude)
	case c.Search.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.Search.Workers)
	case !(c.Binning.Width > 0):
		return fmt.Errorf("%w: %v", binning.ErrInvalidWidth, c.Binning.Width)
	case c.Output.Directory == "":
		return errors.New("output directory is required")
	case c.Output.ModelPoints < 2:
		return fmt.Errorf("model points must be at least 2, got %d", c.Output.ModelPoints)
	}

	if err := c.Search.Grid.Validate(); err != nil {
		return fmt.Errorf("invalid search grid: %w", err)
	}
	if _, ok := validImageFormats[c.Output.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Output.Format)
	}
	return nil
}
