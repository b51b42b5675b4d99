package atlastt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// Config is the ENUMERATED configuration surface of the time-tag integrator
// (§4.4.1 / §6). It is loaded once per process and is immutable for the
// lifetime of an integrator goroutine, with the exception of
// AutoSetRulerClk which is consulted dynamically per period.
type Config struct {
	RemoveDuplicates bool

	TrueRulerClkPeriod float64 // ns, default 10.0
	AutoSetRulerClk    bool

	SignalWidth float64 // ns, 0 = auto

	Correction       Correction
	LoopbackLocation float64 // ns, default 75
	LoopbackWidth    float64 // ns, default 100

	FullColumnIntegration bool

	GpsAccuracyTolerance float64 // s, default 1e-5

	TepLocation float64 // ns, default 18
	TepWidth    float64 // ns, default 5
	BlockTep    bool

	TimeTagBinSize     float64 // m, default 0.225
	TimeTagZoomOffset  float64 // ns

	ChannelDisable [NumChannels + 1]bool // index by channel, 1..20

	// BuildUpMfc is parsed from the buildUpMfc key and stored here. The
	// integrator does not read it, and no intermediate (still-growing)
	// histogram is emitted for any MFC.
	BuildUpMfc int64
}

// DefaultConfig returns the documented defaults from §4.4.1.
func DefaultConfig() Config {
	var cfg Config
	cfg.RemoveDuplicates = true
	cfg.TrueRulerClkPeriod = 10.0
	cfg.AutoSetRulerClk = false
	cfg.SignalWidth = 0
	cfg.Correction = CorrectionUncorrected
	cfg.LoopbackLocation = 75
	cfg.LoopbackWidth = 100
	cfg.FullColumnIntegration = false
	cfg.GpsAccuracyTolerance = 1e-5
	cfg.TepLocation = 18
	cfg.TepWidth = 5
	cfg.BlockTep = true
	cfg.TimeTagBinSize = 1.5 * 3.0 / 20.0
	cfg.TimeTagZoomOffset = 0
	cfg.BuildUpMfc = 0
	return cfg
}

// LoadConfig parses a flat key=value configuration file (§4.9 / §6
// "Configuration file convention"). Blank lines and lines beginning with
// '#' are ignored. Unknown keys are logged at WARN and skipped rather than
// failing the load - a newer config file read by an older binary should
// still start. Missing keys keep their DefaultConfig() value.
//
// Grounded on decode/params.go's PROCESSING_PARAMETERS key=value decoder:
// same "key=value" line shape and type-inference-by-content approach,
// repurposed from a decoded science record into a loaded config file.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		split := strings.SplitN(line, "=", 2)
		if len(split) != 2 {
			return cfg, errors.Join(ErrConfigParse, fmt.Errorf("line %d: missing '='", lineno))
		}
		key := strings.ToLower(strings.TrimSpace(split[0]))
		val := strings.TrimSpace(split[1])

		if err := applyConfigField(&cfg, key, val); err != nil {
			if errors.Is(err, ErrUnknownConfigKey) {
				log.Printf("atlastt: config line %d: %v: %q", lineno, err, key)
				continue
			}
			return cfg, errors.Join(ErrConfigParse, fmt.Errorf("line %d: %w", lineno, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, errors.Join(ErrConfigRead, err)
	}

	return cfg, nil
}

func applyConfigField(cfg *Config, key, val string) error {
	switch key {
	case "removeduplicates":
		return parseBool(val, &cfg.RemoveDuplicates)
	case "truerulerclkperiod":
		return parseFloat(val, &cfg.TrueRulerClkPeriod)
	case "autosetrulerclk":
		return parseBool(val, &cfg.AutoSetRulerClk)
	case "signalwidth":
		return parseFloat(val, &cfg.SignalWidth)
	case "correction":
		switch strings.ToUpper(val) {
		case "UNCORRECTED":
			cfg.Correction = CorrectionUncorrected
		case "LOOPBACK":
			cfg.Correction = CorrectionLoopback
		default:
			return fmt.Errorf("unrecognised correction mode %q", val)
		}
		return nil
	case "loopbacklocation":
		return parseFloat(val, &cfg.LoopbackLocation)
	case "loopbackwidth":
		return parseFloat(val, &cfg.LoopbackWidth)
	case "fullcolumnintegration":
		return parseBool(val, &cfg.FullColumnIntegration)
	case "gpsaccuracytolerance":
		return parseFloat(val, &cfg.GpsAccuracyTolerance)
	case "teplocation":
		return parseFloat(val, &cfg.TepLocation)
	case "tepwidth":
		return parseFloat(val, &cfg.TepWidth)
	case "blocktep":
		return parseBool(val, &cfg.BlockTep)
	case "timetagbinsize":
		return parseFloat(val, &cfg.TimeTagBinSize)
	case "timetagzoomoffset":
		return parseFloat(val, &cfg.TimeTagZoomOffset)
	case "buildupmfc":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		cfg.BuildUpMfc = n
		return nil
	case "channeldisable":
		parts := strings.Split(val, ",")
		if len(parts) != NumChannels {
			return fmt.Errorf("channelDisable requires %d comma-separated values, got %d", NumChannels, len(parts))
		}
		for i, p := range parts {
			var b bool
			if err := parseBool(strings.TrimSpace(p), &b); err != nil {
				return err
			}
			cfg.ChannelDisable[i+1] = b
		}
		return nil
	default:
		return ErrUnknownConfigKey
	}
}

func parseBool(val string, dst *bool) error {
	switch strings.ToLower(val) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	default:
		return fmt.Errorf("not a boolean: %q", val)
	}
	return nil
}

func parseFloat(val string, dst *float64) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}
