package atlastt

import "errors"

// Sentinel errors for the ambient stack (config loading, archive sink, CLI
// wiring). Per-period decode anomalies are not modeled as Go errors - they
// are counted in PacketStats and embedded in the emitted Histogram (see the
// PacketStats counters in stats.go).
var (
	ErrConfigRead       = errors.New("failed to read configuration file")
	ErrConfigParse      = errors.New("failed to parse configuration line")
	ErrUnknownConfigKey = errors.New("unknown configuration key")

	ErrArchiveDisabled = errors.New("archive sink is disabled")
	ErrCreateHistArray = errors.New("error creating histogram tiledb array")
	ErrWriteHistArray  = errors.New("error writing histogram tiledb array")
	ErrCreateCorrArray = errors.New("error creating correlator tiledb array")
	ErrWriteCorrArray  = errors.New("error writing correlator tiledb array")

	ErrCreateAttributeTdb = errors.New("error creating tiledb attribute")
	ErrCreateSchemaTdb    = errors.New("error creating tiledb schema")
	ErrCreateDimTdb       = errors.New("error creating tiledb dimension")
	ErrAddFilters         = errors.New("error adding filter to filter list")
	ErrSetBuff            = errors.New("error setting tiledb data buffer")
	ErrDims               = errors.New("slice field has unsupported dimensionality")
	ErrDtype              = errors.New("slice field has unexpected datatype")

	ErrNoSegmentSources  = errors.New("no segment sources discovered for run")
	ErrUnknownPCE        = errors.New("segment stream references an unconfigured PCE")
	ErrOpenSegmentSource = errors.New("failed to open segment-stream source")

	// ErrQueueFull names the full-emission-queue condition. Integrator.tryEmit
	// does not return it: when its non-blocking post finds no room it counts
	// an autoflush drop and logs.
	ErrQueueFull = errors.New("emission queue full, dropping with autoflush")
)
